// Package grpcx: gRPC-поверхность сервиса: стандартный health-сервис
// и interceptors логирования/восстановления после паники.
package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cwrk-planet/roomcast/pkg/logger"
)

// ServiceName: имя, под которым сервис отвечает в health.Check.
const ServiceName = "roomcast.v1.Rooms"

type Config struct {
	UnaryTimeout time.Duration // 10s
}

type Server struct {
	srv    *grpc.Server
	health *health.Server
	log    *slog.Logger
}

func NewServer(cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.UnaryTimeout <= 0 {
		cfg.UnaryTimeout = 10 * time.Second
	}
	log = logger.Component(log, "grpc")

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(log, cfg.UnaryTimeout)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(log)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{srv: srv, health: hs, log: log}
	s.SetServing(false)
	return s
}

// SetServing переключает статус и общего сервиса (""), и ServiceName.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve блокирует до остановки сервера.
func (s *Server) Serve(lis net.Listener) error {
	s.SetServing(true)
	s.log.Info("grpc server listening", slog.String("addr", lis.Addr().String()))
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop: сначала NOT_SERVING, затем GracefulStop; по истечении ctx жёсткий Stop.
func (s *Server) Stop(ctx context.Context) {
	s.SetServing(false)
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("grpc graceful stop timed out, forcing")
		s.srv.Stop()
	}
}
