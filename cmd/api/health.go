package main

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// healthServiceName is the service reported next to the overall "" status.
const healthServiceName = "chat.v1.ChatService"

// healthService exposes the standard gRPC health protocol for orchestrators
// that probe over gRPC. Status follows store reachability.
type healthService struct {
	server *grpc.Server
	health *health.Server
	ping   func(ctx context.Context) error
	log    zerolog.Logger
}

func newHealthService(ping func(ctx context.Context) error, logger zerolog.Logger) *healthService {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &healthService{
		server: gs,
		health: hs,
		ping:   ping,
		log:    logger.With().Str("component", "grpc-health").Logger(),
	}
}

// check pings the store once and publishes the result.
func (h *healthService) check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("store unreachable")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(healthServiceName, status)
}

// watch re-checks every interval until ctx ends, then reports NOT_SERVING.
func (h *healthService) watch(ctx context.Context, every time.Duration) {
	h.check(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.check(ctx)
		case <-ctx.Done():
			h.health.Shutdown()
			return
		}
	}
}

func (h *healthService) serve(lis net.Listener) error {
	h.log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health listening")
	return h.server.Serve(lis)
}

func (h *healthService) stop() {
	h.server.GracefulStop()
}
