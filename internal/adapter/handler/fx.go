package handler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Yendza/controller-backend/internal/config"
)

func NewEngine(cfg config.Config, h *HTTPHandler, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return h.NewRouter(gatherer)
}

func runHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			go func() {
				log.Info("HTTP server listening", zap.String("addr", srv.Addr))
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("HTTP server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

func runGRPC(lc fx.Lifecycle, cfg config.Config, h *GRPCHandler, log *zap.Logger) {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()

	RegisterLedgerServer(grpcServer, h)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ledgerServiceName, healthpb.HealthCheckResponse_SERVING)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				return err
			}
			go func() {
				log.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
				if err := grpcServer.Serve(lis); err != nil {
					log.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			healthServer.Shutdown()
			grpcServer.GracefulStop()
			return nil
		},
	})
}

var Module = fx.Module("handler",
	fx.Provide(
		NewHTTPHandler,
		NewGRPCHandler,
		NewEngine,
	),
	fx.Invoke(runHTTP, runGRPC),
)
