package httpapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"itdesk.org/internal/obs"
)

const bufSize = 1024 * 1024

func startBufGRPC(t *testing.T, rp ReadyProbe) grpc_health_v1.HealthClient {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := NewGRPCServer(rp, nil)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		server.GracefulStop()
		_ = conn.Close()
		_ = listener.Close()
	})
	return grpc_health_v1.NewHealthClient(conn)
}

func TestGRPCHealthServing(t *testing.T) {
	client := startBufGRPC(t, ReadyProbe{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())

	resp, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: serviceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPCHealthNotServingWhenDBDown(t *testing.T) {
	client := startBufGRPC(t, ReadyProbe{DB: pingFunc(func(context.Context) error {
		return errors.New("connection refused")
	})})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestGRPCHealthUnknownService(t *testing.T) {
	client := startBufGRPC(t, ReadyProbe{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "ledger"})
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
}

func TestHealthServerDefaultsToSharedLogger(t *testing.T) {
	assert.Same(t, obs.Logger(), NewHealthServer(ReadyProbe{}, nil).log)
}
