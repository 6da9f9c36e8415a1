package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/device-attitude/core"
	"github.com/signalsfoundry/device-attitude/earth"
	"github.com/signalsfoundry/device-attitude/internal/api"
	"github.com/signalsfoundry/device-attitude/internal/config"
	"github.com/signalsfoundry/device-attitude/internal/journal"
	"github.com/signalsfoundry/device-attitude/internal/logging"
	"github.com/signalsfoundry/device-attitude/internal/observability"
	"github.com/signalsfoundry/device-attitude/internal/session"
	"github.com/signalsfoundry/device-attitude/internal/sink"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	grpcAddr := flag.String("grpc-addr", "", "TCP address the attitude gRPC server listens on (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	journalPath := flag.String("journal", "", "SQLite file to journal results to (overrides config)")
	tiltSequence := flag.String("tilt-sequence", "", "Axis order of the tilt angles, e.g. 2-1-3 (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attitude-server: %v\n", err)
		os.Exit(2)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "grpc-addr":
			cfg.Server.GRPCAddr = *grpcAddr
		case "metrics-addr":
			cfg.Server.MetricsAddr = *metricsAddr
		case "journal":
			cfg.Journal.Path = *journalPath
		case "tilt-sequence":
			cfg.Attitude.TiltSequence = *tiltSequence
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "attitude-server: %v\n", err)
		os.Exit(2)
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "attitude server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the attitude service on lis until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	tracingCfg := observability.ApplyTracingEnv(observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	collector, err := observability.NewAttitudeCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	pipelineMetrics, err := observability.NewPipelineCollector(reg)
	if err != nil {
		return fmt.Errorf("init pipeline metrics: %w", err)
	}
	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, collector, log)
	if metricsSrv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	earthModel := earth.Model{}
	pipeline, err := core.NewPipeline(earthModel,
		core.WithTiltSequence(cfg.TiltSequence()),
		core.WithDeclinationSource(earthModel),
		core.WithNorthAngleEstimator(core.NorthAngleEstimator{FlipElevation: cfg.FlipElevationRad()}),
	)
	if err != nil {
		return err
	}

	results := sink.NewBroadcaster(cfg.Watch.Buffer, pipelineMetrics)

	var journalDone sync.WaitGroup
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		records, unsubscribe := results.Subscribe()
		defer unsubscribe()
		journalDone.Add(1)
		go func() {
			defer journalDone.Done()
			j.Consume(context.Background(), records, log, pipelineMetrics)
		}()
		log.Info(ctx, "journaling results", logging.String("path", cfg.Journal.Path))
	}

	sessions := session.NewRegistry(
		session.WithPublisher(results),
		session.WithMetrics(collector),
	)
	sessions.Subscribe(func(e session.Event) {
		log.Debug(ctx, "session event",
			logging.String("event", e.Type.String()),
			logging.String("session_id", e.SessionID),
		)
	})

	svc := api.NewService(pipeline, sessions, results,
		api.WithLogger(log),
		api.WithMetrics(collector),
		api.WithPipelineMetrics(pipelineMetrics),
		api.WithApplyDeclination(cfg.Attitude.ApplyDeclination),
	)

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			api.RequestIDUnaryServerInterceptor(log),
			api.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			api.RequestIDStreamServerInterceptor(log),
			api.TracingStreamServerInterceptor(),
			collector.StreamServerInterceptor(),
		),
	)
	api.RegisterAttitudeServer(server, svc)

	log.Info(ctx, "starting attitude gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.String("tilt_sequence", pipeline.TiltSequence().String()),
		logging.Bool("apply_declination", cfg.Attitude.ApplyDeclination),
	)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		results.Close()
		journalDone.Wait()
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	}

	log.Info(context.Background(), "shutting down attitude server")
	// watchers end when the broadcaster closes; sessions end when clients do
	results.Close()
	gracefulStop(server, cfg.Server.ShutdownTimeout.Std())
	journalDone.Wait()
	return nil
}

// gracefulStop waits up to timeout for in-flight RPCs, then forces the rest.
func gracefulStop(server *grpc.Server, timeout time.Duration) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		server.Stop()
		<-stopped
	}
}

func serveMetrics(addr string, collector *observability.AttitudeCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
