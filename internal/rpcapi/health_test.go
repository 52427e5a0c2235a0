package rpcapi_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
	"github.com/BrandonDHaskell/lasergate/internal/logging"
	"github.com/BrandonDHaskell/lasergate/internal/rpcapi"
)

type mutableStatus struct {
	mu sync.Mutex
	st types.Status
}

func (m *mutableStatus) Status() types.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

func (m *mutableStatus) set(st types.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = st
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := types.Status{UpdatedAt: now.Add(-time.Second)}

	require.Equal(t, healthpb.HealthCheckResponse_SERVING,
		rpcapi.Evaluate(fresh, now, 30*time.Second, 5))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING,
		rpcapi.Evaluate(types.Status{}, now, 30*time.Second, 5), "never ticked")
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING,
		rpcapi.Evaluate(types.Status{UpdatedAt: now.Add(-time.Minute)}, now, 30*time.Second, 5), "stale")

	faulty := fresh
	faulty.HardwareFaults = 5
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING,
		rpcapi.Evaluate(faulty, now, 30*time.Second, 5))
}

func TestHealthService_TracksStatus(t *testing.T) {
	src := &mutableStatus{}
	srv := rpcapi.NewServer(rpcapi.Dependencies{
		Logger:    logging.Discard(),
		Status:    src,
		PollEvery: 10 * time.Millisecond,
	})

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Shutdown)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: rpcapi.ServiceName})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	require.Eventually(t, func() bool {
		return check() == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	src.set(types.Status{Mode: "idle", UpdatedAt: time.Now()})
	require.Eventually(t, func() bool {
		return check() == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	src.set(types.Status{Mode: "idle", UpdatedAt: time.Now(), HardwareFaults: 9})
	require.Eventually(t, func() bool {
		return check() == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)
}
