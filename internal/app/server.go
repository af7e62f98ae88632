package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// newGRPCServer создаёт сервер с prometheus-интерсептором и стандартным health-сервисом.
// Бизнес-сервисы регистрируются вызывающим кодом до serveGRPC.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *promgrpc.ServerMetrics, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	return server, grpcMetrics, healthServer
}

// serveGRPC слушает addr до отмены ctx, затем останавливает сервер с таймаутом.
func serveGRPC(ctx context.Context, addr string, server *grpc.Server, healthServer *health.Server, logger *log.Entry) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", addr)
		errCh <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopped := make(chan struct{})
		go func() {
			server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			server.Stop()
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// opsMux отдаёт метрики и health-проверки.
func opsMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// startOpsServer запускает HTTP-сервер метрик и health checks рядом с gRPC.
func startOpsServer(addr string, healthHandler *healthcheck.Handler, logger *log.Entry) *http.Server {
	srv := &http.Server{Addr: addr, Handler: opsMux(healthHandler), ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()
	return srv
}

// serveHTTP обслуживает srv до отмены ctx.
func serveHTTP(ctx context.Context, srv *http.Server, logger *log.Entry) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP сервер слушает %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownHTTP(srv, logger)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// background запускает фоновые воркеры и ждёт их завершения.
type background struct {
	wg sync.WaitGroup
}

func (b *background) Go(ctx context.Context, run func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		run(ctx)
	}()
}

func (b *background) Wait() {
	b.wg.Wait()
}

// breakerChecker считает зависимость недоступной, пока её circuit breaker открыт,
// и degraded, пока он пробует полуоткрытое состояние.
func breakerChecker(name string, state func() string) healthcheck.Checker {
	return healthcheck.NewSimpleChecker(name, func(context.Context) error {
		switch s := state(); s {
		case "open":
			return fmt.Errorf("%s circuit breaker is %s", name, s)
		case "half-open":
			return fmt.Errorf("%w: %s circuit breaker is %s", healthcheck.ErrDegraded, name, s)
		}
		return nil
	})
}
