package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"AI_ANNOTATOR/go-client/internal/config"
	"AI_ANNOTATOR/go-client/internal/handlers"
	"AI_ANNOTATOR/go-client/internal/logger"
)

func main() {
	addr := flag.String("addr", ":5000", "listen address")
	delay := flag.Duration("delay", 0, "artificial delay before each reply")
	flag.Parse()

	cfg := config.LoadConfig()
	log := logger.New(cfg)

	server := handlers.NewAnnotationServer(log, handlers.AnnotationServerOptions{
		SourceWidth:  cfg.SourceWidth,
		Delay:        *delay,
		PingInterval: cfg.PingInterval,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HealthHTTP)
	mux.Handle("/", server)

	httpServer := &http.Server{
		Addr:        *addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("mock annotator listening", "websocket", "ws://localhost"+*addr, "delay", *delay)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to serve HTTP", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("error shutting down HTTP server", "error", err)
	}
	server.CloseAll()
	slog.Info("Goodbye!", "frames", server.FramesProcessed())
}
