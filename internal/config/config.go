package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AnnotatorURL string
	Environment  string
	LogLevel     string
	LogFormat    string

	// Service level reconnect policy of the connection manager.
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int

	// Session level retry policy applied once the service gives up.
	SessionRetryDelay time.Duration
	SessionMaxRetries int

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration

	CaptureTargetWidth  int
	JPEGQuality         int
	LatencyHistoryLimit int

	SourceWidth  int
	SourceHeight int
	SourceFPS    int

	DisplayWidth  int
	DisplayHeight int

	DiagnosticsAddr string
	TracingExporter string
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

// Validate reports the first setting that cannot be used to run the client.
func (c *Config) Validate() error {
	u, err := url.Parse(c.AnnotatorURL)
	if err != nil {
		return fmt.Errorf("invalid ANNOTATOR_URL %q: %w", c.AnnotatorURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid ANNOTATOR_URL %q: scheme must be ws or wss", c.AnnotatorURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid ANNOTATOR_URL %q: host is empty", c.AnnotatorURL)
	}
	if c.ReconnectInterval <= 0 || c.SessionRetryDelay <= 0 {
		return errors.New("reconnect delays must be positive")
	}
	if c.MaxReconnectAttempts < 0 || c.SessionMaxRetries < 0 {
		return errors.New("reconnect attempt limits must not be negative")
	}
	if c.CaptureTargetWidth <= 0 {
		return fmt.Errorf("CAPTURE_TARGET_WIDTH must be positive, got %d", c.CaptureTargetWidth)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be within 1..100, got %d", c.JPEGQuality)
	}
	if c.LatencyHistoryLimit < 0 {
		return fmt.Errorf("LATENCY_HISTORY_LIMIT must not be negative, got %d", c.LatencyHistoryLimit)
	}
	return nil
}

func LoadConfig() *Config {
	// .env is optional, the process environment wins either way
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		AnnotatorURL:         getEnv("ANNOTATOR_URL", "ws://localhost:5000"),
		Environment:          getEnv("ENVIRONMENT", "production"),
		LogLevel:             getEnv("LOG_LEVEL", "INFO"),
		LogFormat:            getEnv("LOG_FORMAT", "text"),
		ReconnectInterval:    getEnvDuration("RECONNECT_INTERVAL", 5*time.Second),
		MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 10),
		SessionRetryDelay:    getEnvDuration("SESSION_RETRY_DELAY", 2*time.Second),
		SessionMaxRetries:    getEnvInt("SESSION_MAX_RETRIES", 5),
		HandshakeTimeout:     getEnvDuration("HANDSHAKE_TIMEOUT", 10*time.Second),
		WriteTimeout:         getEnvDuration("WRITE_TIMEOUT", 10*time.Second),
		PingInterval:         getEnvDuration("PING_INTERVAL", 30*time.Second),
		CaptureTargetWidth:   getEnvInt("CAPTURE_TARGET_WIDTH", 320),
		JPEGQuality:          getEnvInt("JPEG_QUALITY", 40),
		LatencyHistoryLimit:  getEnvInt("LATENCY_HISTORY_LIMIT", 0),
		SourceWidth:          getEnvInt("SOURCE_WIDTH", 640),
		SourceHeight:         getEnvInt("SOURCE_HEIGHT", 480),
		SourceFPS:            getEnvInt("SOURCE_FPS", 30),
		DisplayWidth:         getEnvInt("DISPLAY_WIDTH", 640),
		DisplayHeight:        getEnvInt("DISPLAY_HEIGHT", 480),
		DiagnosticsAddr:      getEnv("DIAGNOSTICS_ADDR", ""),
		TracingExporter:      getEnv("TRACING_EXPORTER", "noop"),
	}
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
