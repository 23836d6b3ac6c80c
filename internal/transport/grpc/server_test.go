package grpcx

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func startBufconn(t *testing.T, s *Server) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealth_ServingWhileRunning(t *testing.T) {
	s := NewServer(Config{}, quietLogger())
	c := startBufconn(t, s)
	t.Cleanup(func() { s.Stop(context.Background()) })

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ServiceName))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown.Service"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestHealth_NotServingDuringShutdown(t *testing.T) {
	s := NewServer(Config{}, quietLogger())
	c := startBufconn(t, s)
	t.Cleanup(func() { s.Stop(context.Background()) })
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ServiceName))

	s.SetServing(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, ServiceName))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, ""))
}

func TestUnaryInterceptor_RecoversPanic(t *testing.T) {
	icpt := UnaryServerInterceptor(quietLogger(), time.Second)
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Svc/Boom"}

	_, err := icpt(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestUnaryInterceptor_AddsDeadline(t *testing.T) {
	icpt := UnaryServerInterceptor(quietLogger(), time.Second)
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Svc/Ok"}

	resp, err := icpt(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return req, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "req", resp)
}

func TestStreamInterceptor_RecoversPanic(t *testing.T) {
	icpt := StreamServerInterceptor(quietLogger())
	info := &grpc.StreamServerInfo{FullMethod: "/test.Svc/Stream"}

	err := icpt(nil, nil, info, func(any, grpc.ServerStream) error {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}
