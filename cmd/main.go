package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"os"
	"syscall"

	"github.com/cwrk-planet/roomcast/config"
	"github.com/cwrk-planet/roomcast/internal/broadcast"
	"github.com/cwrk-planet/roomcast/internal/lifecycle"
	"github.com/cwrk-planet/roomcast/internal/membership"
	serverhttp "github.com/cwrk-planet/roomcast/internal/server/http"
	grpcx "github.com/cwrk-planet/roomcast/internal/transport/grpc"
	httpx "github.com/cwrk-planet/roomcast/internal/transport/http"
	"github.com/cwrk-planet/roomcast/internal/transport/ws"
	"github.com/cwrk-planet/roomcast/pkg/logger"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"golang.org/x/sync/errgroup"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("logging.level: %v", err)
	}

	base := logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     level,
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	base.Info("starting roomcast",
		slog.String("env", cfg.Logging.Env), slog.String("version", cfg.Logging.Version))

	// --- core ---
	dispatch := broadcast.NewDispatcher(broadcast.NewSinks(), base)
	coord := membership.New(dispatch, membership.WithLogger(base))
	lc := lifecycle.NewHandler(coord, dispatch, lifecycle.WithLogger(base))

	// --- WS ---
	wsServer := ws.NewServer(lc, ws.Config{
		PingEvery:       cfg.WS.PingEvery,
		WriteWait:       cfg.WS.WriteWait,
		SendBuffer:      cfg.WS.SendBuffer,
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
		AllowedOrigins:  cfg.WS.AllowedOrigins,
	}, base)

	// --- HTTP ---
	router := httpx.NewRouter(httpx.Deps{
		WS:             wsServer.HandleWS,
		Rooms:          coord,
		Logger:         base,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		EnableDebug:    cfg.HTTP.Debug,
	})
	httpSrv := serverhttp.New(serverhttp.Config{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, router, base)

	// --- gRPC ---
	grpcSrv := grpcx.NewServer(grpcx.Config{
		UnaryTimeout: cfg.GRPC.UnaryTimeout,
	}, base)

	// --- run both servers ---
	httpLis, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		log.Fatalf("http listen: %v", err)
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	var g errgroup.Group
	g.Go(func() error { return httpSrv.Serve(httpLis) })
	g.Go(func() error { return grpcSrv.Serve(grpcLis) })
	go func() {
		// упавший listener запускает тот же путь остановки, что и сигнал
		if err := g.Wait(); err != nil {
			base.Error("server error", slog.Any("err", err))
			if p, ferr := os.FindProcess(os.Getpid()); ferr == nil {
				_ = p.Signal(syscall.SIGTERM)
			}
		}
	}()

	// --- graceful shutdown ---
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"roomcast": func(ctx context.Context) error {
				base.Info("graceful shutdown initiated")
				return stop(ctx, grpcSrv, httpSrv, wsServer)
			},
		},
	)

	exitCode := <-wait
	base.Info("stopped", slog.Int("exit_code", exitCode), slog.Any("rooms", coord.Stats()))
	os.Exit(exitCode)
}

// stop: health NOT_SERVING -> HTTP (новые апгрейды отклоняются) -> ws-соединения
// с их disconnect -> gRPC GracefulStop.
func stop(ctx context.Context, grpcSrv *grpcx.Server, httpSrv *serverhttp.Server, wsServer *ws.Server) error {
	grpcSrv.SetServing(false)

	var errs []error
	if err := httpSrv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := wsServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	grpcSrv.Stop(ctx)
	return errors.Join(errs...)
}
