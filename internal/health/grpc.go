package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "schedulease"

// GRPCServer exposes the standard grpc.health.v1 service backed by a Checker.
type GRPCServer struct {
	server   *grpc.Server
	health   *grpchealth.Server
	checker  *Checker
	interval time.Duration
	logger   zerolog.Logger
}

func NewGRPCServer(checker *Checker, interval time.Duration, logger *zerolog.Logger) *GRPCServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	hs := grpchealth.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &GRPCServer{
		server:   srv,
		health:   hs,
		checker:  checker,
		interval: interval,
		logger:   logger.With().Str("component", "grpc_health").Logger(),
	}
}

// Refresh sets the serving status from one readiness check.
func (g *GRPCServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := g.checker.Ready(ctx); err != nil {
		g.logger.Warn().Err(err).Msg("not serving")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
	return status
}

// Serve accepts on lis until ctx is done, refreshing status every interval.
func (g *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	g.Refresh(ctx)
	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.Refresh(ctx)
			case <-ctx.Done():
				g.health.Shutdown()
				stopped := make(chan struct{})
				go func() {
					g.server.GracefulStop()
					close(stopped)
				}()
				select {
				case <-stopped:
				case <-time.After(shutdownTimeout):
					g.server.Stop()
				}
				return
			}
		}
	}()

	g.logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health listening")
	if err := g.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc health: %w", err)
	}
	return nil
}

// ListenAndServe listens on port and calls Serve.
func (g *GRPCServer) ListenAndServe(ctx context.Context, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return g.Serve(ctx, lis)
}
