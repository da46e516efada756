package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"AI_ANNOTATOR/go-client/internal/capture"
	"AI_ANNOTATOR/go-client/internal/client"
	"AI_ANNOTATOR/go-client/internal/config"
	"AI_ANNOTATOR/go-client/internal/logger"
	"AI_ANNOTATOR/go-client/internal/overlay"
	"AI_ANNOTATOR/go-client/internal/status"
	"AI_ANNOTATOR/go-client/internal/tracer"

	"google.golang.org/grpc"
)

func main() {
	annotatorURL := flag.String("annotator-url", "", "annotation service websocket URL (overrides ANNOTATOR_URL)")
	diagAddr := flag.String("diagnostics-addr", "", "gRPC health listen address (overrides DIAGNOSTICS_ADDR)")
	flag.Parse()

	cfg := config.LoadConfig()
	if *annotatorURL != "" {
		cfg.AnnotatorURL = *annotatorURL
	}
	if *diagAddr != "" {
		cfg.DiagnosticsAddr = *diagAddr
	}

	log := logger.New(cfg)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log.Info("Starting...",
		"annotator", cfg.AnnotatorURL,
		"environment", cfg.Environment,
		"diagnostics", cfg.DiagnosticsAddr,
	)

	shutdownTracer, err := tracer.Setup(cfg.TracingExporter)
	if err != nil {
		log.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	source := capture.NewSyntheticSource(cfg.SourceWidth, cfg.SourceHeight, cfg.SourceFPS, log)
	c := client.New(cfg, log, client.Deps{
		Acquirer: source,
		Surface:  overlay.NewImageSurface(),
		Sink:     status.NewLogSink(log),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		log.Error("client start failed", "error", err)
		os.Exit(1)
	}

	var grpcServer *grpc.Server
	if cfg.DiagnosticsAddr != "" {
		grpcServer = grpc.NewServer()
		c.Health().Register(grpcServer)
		go startDiagnostics(grpcServer, cfg.DiagnosticsAddr, log)
	}

	<-done
	log.Info("Shutting down...")

	if grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			log.Warn("forced diagnostics shutdown")
			grpcServer.Stop()
		}
	}

	c.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Warn("tracer shutdown failed", "error", err)
	}

	log.Info("Goodbye!")
}

func startDiagnostics(s *grpc.Server, addr string, log *slog.Logger) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("diagnostics listen failed", "addr", addr, "error", err)
		return
	}
	log.Info("diagnostics listening", "addr", lis.Addr().String())
	if err := s.Serve(lis); err != nil {
		log.Error("diagnostics server stopped", "error", err)
	}
}
