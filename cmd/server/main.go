package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/yuval/qrstamp/internal/api"
	"github.com/yuval/qrstamp/internal/config"
	applog "github.com/yuval/qrstamp/internal/log"
	"github.com/yuval/qrstamp/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	applog.SetupLogging(cfg.App.LogLevel, cfg.App.LogFormat)

	encoder, err := api.NewEncoder(cfg.QR)
	if err != nil {
		slog.Error("Invalid QR settings", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubCtx, stopHub := context.WithCancel(ctx)
	hub := websocket.NewHub()
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	limiter := api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go limiter.Cleanup(ctx)

	srv, err := api.NewServer(cfg, encoder, hub, limiter)
	if err != nil {
		slog.Error("Failed to build API", "error", err)
		os.Exit(1)
	}

	// gRPC health for orchestrator probes
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	grpcLis, err := net.Listen("tcp", cfg.App.GRPCAddr)
	if err != nil {
		slog.Error("Failed to listen", "address", cfg.App.GRPCAddr, "error", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("gRPC health server listening", "address", cfg.App.GRPCAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			slog.Error("Failed to serve gRPC", "error", err)
			os.Exit(1)
		}
	}()

	server := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "address", cfg.App.HTTPAddr, "policy", cfg.Payload.Policy)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start HTTP server", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	healthServer.Shutdown()

	stopHub()
	<-hubDone

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown", "error", err)
	}

	grpcServer.GracefulStop()
	slog.Info("Shutdown complete")
}
