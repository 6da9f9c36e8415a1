package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Result outcomes recorded by ObserveResult.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// AttitudeCollector bundles Prometheus metrics for the attitude service and
// provides helpers to wire them into gRPC servers and HTTP handlers.
type AttitudeCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	ActiveSessions prometheus.Gauge
	Results        *prometheus.CounterVec
	StationUpdates prometheus.Counter
}

// NewAttitudeCollector registers attitude Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewAttitudeCollector(reg prometheus.Registerer) (*AttitudeCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attitude_rpc_requests_total",
		Help: "Total number of handled attitude RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "attitude_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "attitude_rpc_duration_seconds",
		Help:    "Attitude RPC latency in seconds. Streaming RPCs are measured over the stream lifetime.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 10, 60, 600},
	}, []string{"service", "method"})
	durations, err = registerHistogramVec(reg, durations, "attitude_rpc_duration_seconds")
	if err != nil {
		return nil, err
	}

	sessions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attitude_active_sessions",
		Help: "Current number of open attitude sessions.",
	}), "attitude_active_sessions")
	if err != nil {
		return nil, err
	}

	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attitude_results_total",
		Help: "Orientation computations, labeled by output frame and outcome.",
	}, []string{"frame", "outcome"})
	results, err = registerCounterVec(reg, results, "attitude_results_total")
	if err != nil {
		return nil, err
	}

	stations, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attitude_station_updates_total",
		Help: "Accepted station position updates across all sessions.",
	}), "attitude_station_updates_total")
	if err != nil {
		return nil, err
	}

	return &AttitudeCollector{
		gatherer:       gatherer,
		RPCRequests:    requests,
		RPCDurations:   durations,
		ActiveSessions: sessions,
		Results:        results,
		StationUpdates: stations,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *AttitudeCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		c.observeRPC(fullMethod, err, start)
		return resp, err
	}
}

// StreamServerInterceptor records one request per stream, labeled with the
// status the stream ended with.
func (c *AttitudeCollector) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		c.observeRPC(fullMethod, err, start)
		return err
	}
}

func (c *AttitudeCollector) observeRPC(fullMethod string, err error, start time.Time) {
	if c == nil {
		return
	}
	service, method := SplitMethod(fullMethod)
	code := status.Code(err).String()

	if c.RPCRequests != nil {
		c.RPCRequests.WithLabelValues(service, method, code).Inc()
	}
	if c.RPCDurations != nil {
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *AttitudeCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *AttitudeCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// SetActiveSessions satisfies the session registry's metrics recorder so the
// registry can drive the gauge directly from Open and Close.
func (c *AttitudeCollector) SetActiveSessions(n int) {
	if c == nil || c.ActiveSessions == nil {
		return
	}
	c.ActiveSessions.Set(float64(n))
}

// IncStationUpdates counts an accepted station update.
func (c *AttitudeCollector) IncStationUpdates() {
	if c == nil || c.StationUpdates == nil {
		return
	}
	c.StationUpdates.Inc()
}

// ObserveResult counts one orientation computation.
func (c *AttitudeCollector) ObserveResult(frame, outcome string) {
	if c == nil || c.Results == nil {
		return
	}
	if frame == "" {
		frame = "unknown"
	}
	c.Results.WithLabelValues(frame, outcome).Inc()
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
