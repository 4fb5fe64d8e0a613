package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/pkg/errorbank"
)

// OrdersServiceName is the health-check name reported for the order service.
const OrdersServiceName = "ordertrack.orders"

// Module exposes the gRPC server and lifecycle hooks to Fx.
var Module = fx.Module("grpc_server",
	fx.Provide(NewHealth, NewServer),
	fx.Invoke(Run),
)

// NewHealth builds the standard gRPC health service.
func NewHealth() *health.Server {
	return health.NewServer()
}

// NewServer builds a gRPC server whose interceptors log every call and translate errorbank
// errors into status errors.
func NewServer(logger *zap.Logger, hs *health.Server) *grpc.Server {
	logger = logger.Named("grpc")
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			return resp, finish(logger, info.FullMethod, start, err)
		}),
		grpc.ChainStreamInterceptor(func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
			start := time.Now()
			return finish(logger, info.FullMethod, start, next(srv, ss))
		}),
	)
	healthpb.RegisterHealthServer(server, hs)
	return server
}

func finish(logger *zap.Logger, method string, start time.Time, err error) error {
	fields := []zap.Field{zap.String("method", method), zap.Duration("elapsed", time.Since(start))}
	if err == nil {
		logger.Debug("call served", fields...)
		return nil
	}
	logger.Warn("call failed", append(fields, zap.String("kind", string(errorbank.KindOf(err))), zap.Error(err))...)
	return ToStatus(err)
}

// ToStatus converts errorbank errors into gRPC status errors. Errors that already carry a status pass
// through unchanged.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var appErr *errorbank.AppError
	if errors.As(err, &appErr) {
		return status.Error(appErr.GRPCCode(), appErr.Message())
	}
	return status.Error(errorbank.Internal("").GRPCCode(), err.Error())
}

// Run serves on the configured listener and marks the order service healthy once it is bound.
func Run(lc fx.Lifecycle, cfg config.Config, server *grpc.Server, hs *health.Server, logger *zap.Logger) {
	addr := cfg.GRPC.Addr()
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen grpc %s: %w", addr, err)
			}
			hs.SetServingStatus(OrdersServiceName, healthpb.HealthCheckResponse_SERVING)
			logger.Info("grpc listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
					logger.Error("grpc serve stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			hs.Shutdown()
			done := make(chan struct{})
			go func() {
				defer close(done)
				server.GracefulStop()
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				server.Stop()
				return ctx.Err()
			}
		},
	})
}
