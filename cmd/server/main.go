package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/slabby/internal/adapter/handler"
	"github.com/rl1809/slabby/internal/adapter/itemcodec"
	"github.com/rl1809/slabby/internal/bootstrap"
	"github.com/rl1809/slabby/internal/config"
	"github.com/rl1809/slabby/internal/core/service"
)

func main() {
	cfg := config.MustLoad()

	logger, err := cfg.Log.Logger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	repo, err := bootstrap.OpenRepository(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer repo.Close()
	logger.Info("connected to database", zap.String("driver", cfg.Database.Driver))

	// Initialize Redis
	rdb, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Initialize service
	svc, err := bootstrap.NewService(cfg, repo, bootstrap.NewStandalone(), rdb, logger)
	if err != nil {
		return err
	}
	gate := service.NewGate()
	codec := itemcodec.New()

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.NewGRPCHandler(svc, repo, codec, gate, logger).Register(grpcServer)
	healthServer := health.NewServer()
	healthServer.SetServingStatus(handler.ShopServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(svc, repo, codec, gate, logger)
	httpServer := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      httpHandler.Router(cfg.Server.CORSOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.Server.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		healthServer.Shutdown()
		err := httpServer.Shutdown(shutdownCtx)
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return err
	})

	return g.Wait()
}
