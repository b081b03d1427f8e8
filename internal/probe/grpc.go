// Package probe exposes the standard gRPC health service, driven by periodic store pings.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") service.
const ServiceName = "agentdesk"

const (
	defaultInterval = 15 * time.Second
	pingTimeout     = 2 * time.Second
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer serves grpc.health.v1.Health.
type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	logger   *slog.Logger
}

// NewHealthServer creates a health server. The initial status is set by a
// synchronous ping so the first Check already reflects the store.
func NewHealthServer(ctx context.Context, pinger Pinger, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &HealthServer{
		server:   grpc.NewServer(),
		health:   health.NewServer(),
		pinger:   pinger,
		interval: defaultInterval,
		logger:   logger,
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.check(ctx)
	return s
}

// Start listens on addr and serves until ctx is cancelled.
func Start(ctx context.Context, addr string, pinger Pinger, logger *slog.Logger) (*HealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	s := NewHealthServer(ctx, pinger, logger)
	go s.Serve(ctx, lis)
	return s, nil
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) {
	go s.watch(ctx)
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("gRPC health probe listening", "addr", lis.Addr().String())
	if err := s.server.Serve(lis); err != nil {
		s.logger.Error("gRPC health probe stopped", "error", err)
	}
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

func (s *HealthServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *HealthServer) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(pingCtx); err != nil {
		s.logger.Warn("Store ping failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
