// Package rpcapi exposes controller liveness over the standard gRPC health
// protocol so supervisors can probe the cutter gate like any other service.
package rpcapi

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// ServiceName is the health-check service name for the controller loop.
const ServiceName = "lasergate.v1.Controller"

// StatusSource publishes the controller's last tick.
type StatusSource interface {
	Status() types.Status
}

type Dependencies struct {
	Logger *slog.Logger
	Addr   string
	Status StatusSource

	// StaleAfter marks the loop unhealthy when no tick was published for
	// this long. Must exceed the longest hold. Defaults to 30s.
	StaleAfter time.Duration

	// MaxFaults is how many consecutive faulty ticks are tolerated.
	// Defaults to 5.
	MaxFaults int

	// PollEvery is how often the status is re-evaluated. Defaults to 1s.
	PollEvery time.Duration
}

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *slog.Logger
	addr       string
	status     StatusSource

	staleAfter time.Duration
	maxFaults  int
	pollEvery  time.Duration

	// watch runs from construction until Shutdown.
	cancel context.CancelFunc
	done   chan struct{}
}

func NewServer(d Dependencies) *Server {
	if d.StaleAfter <= 0 {
		d.StaleAfter = 30 * time.Second
	}
	if d.MaxFaults <= 0 {
		d.MaxFaults = 5
	}
	if d.PollEvery <= 0 {
		d.PollEvery = time.Second
	}

	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		grpcServer: gs,
		health:     hs,
		logger:     d.Logger,
		addr:       d.Addr,
		status:     d.Status,
		staleAfter: d.StaleAfter,
		maxFaults:  d.MaxFaults,
		pollEvery:  d.PollEvery,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go s.watch(ctx)
	return s
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve serves on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Shutdown reports NOT_SERVING to watchers and drains open RPCs.
func (s *Server) Shutdown() {
	s.cancel()
	<-s.done
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

func (s *Server) watch(ctx context.Context) {
	defer close(s.done)

	last := healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		next := Evaluate(s.status.Status(), time.Now(), s.staleAfter, s.maxFaults)
		if next != last {
			s.health.SetServingStatus(ServiceName, next)
			s.health.SetServingStatus("", next)
			s.logger.Info("controller health changed", "status", next.String())
			last = next
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Evaluate maps a status snapshot to a serving status. The loop is healthy
// when it has ticked recently and its devices are not failing repeatedly.
func Evaluate(st types.Status, now time.Time, staleAfter time.Duration, maxFaults int) healthpb.HealthCheckResponse_ServingStatus {
	switch {
	case st.UpdatedAt.IsZero():
		return healthpb.HealthCheckResponse_NOT_SERVING
	case now.Sub(st.UpdatedAt) > staleAfter:
		return healthpb.HealthCheckResponse_NOT_SERVING
	case st.HardwareFaults >= maxFaults:
		return healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return healthpb.HealthCheckResponse_SERVING
	}
}
