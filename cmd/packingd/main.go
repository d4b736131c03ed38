package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/export"
	"github.com/joseph-ayodele/packing-tracker/internal/feed"
	"github.com/joseph-ayodele/packing-tracker/internal/lifecycle"
	repo "github.com/joseph-ayodele/packing-tracker/internal/repository"
	"github.com/joseph-ayodele/packing-tracker/internal/server"
)

func main() {
	_ = godotenv.Load()

	// Setup structured logger that outputs messages with variables but no time/level
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	if cfg.NATS.URL == "" {
		logger.Error("NATS_URL env var is required")
		os.Exit(2)
	}
	addr := cfg.Server.GRPCAddr
	if !strings.HasPrefix(addr, ":") && !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nc, err := feed.Connect(cfg.NATS.URL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		logger.Error("failed to connect to nats", "url", cfg.NATS.URL, "error", err)
		os.Exit(1)
	}
	defer func() { _ = nc.Drain() }()
	bus := feed.NewNATSBus(nc, cfg.NATS.SubjectPrefix, false, logger)

	store, err := repo.Open(ctx, cfg, bus, logger)
	if err != nil {
		logger.Error("failed to open job store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer repo.Close(store, logger)

	engine := lifecycle.NewEngine(store, logger, lifecycle.WithPhaseCap(cfg.Sync.PhaseCap))
	exporter := export.NewService(engine, logger)

	commands := server.NewCommandService(engine, exporter, cfg.NATS.SubjectPrefix, logger)
	if err := commands.Start(nc); err != nil {
		logger.Error("failed to start command service", "error", err)
		os.Exit(1)
	}
	defer commands.Stop()

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer()

	// Register gRPC health service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	logger.Info("packingd listening", "addr", addr, "store", cfg.Store.Driver, "subject_prefix", cfg.NATS.SubjectPrefix)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()
	grpcServer.GracefulStop()
}
