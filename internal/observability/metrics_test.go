package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAttitudeCollector(reg)
	if err != nil {
		t.Fatalf("NewAttitudeCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/attitude.v1.AttitudeService/ComputeOrientation"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("AttitudeService", "ComputeOrientation", "OK")); got != 1 {
		t.Fatalf("attitude_rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "attitude_rpc_duration_seconds", map[string]string{
		"service": "AttitudeService",
		"method":  "ComputeOrientation",
	}); count != 1 {
		t.Fatalf("attitude_rpc_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAttitudeCollector(reg)
	if err != nil {
		t.Fatalf("NewAttitudeCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/attitude.v1.AttitudeService/StationPosition"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.FailedPrecondition, "need position data")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("AttitudeService", "StationPosition", "FailedPrecondition")); got != 1 {
		t.Fatalf("attitude_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestStreamInterceptorRecordsStreamOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAttitudeCollector(reg)
	if err != nil {
		t.Fatalf("NewAttitudeCollector: %v", err)
	}

	interceptor := collector.StreamServerInterceptor()
	info := &grpc.StreamServerInfo{FullMethod: "/attitude.v1.AttitudeService/Session", IsClientStream: true, IsServerStream: true}

	err = interceptor(nil, nil, info, func(srv interface{}, ss grpc.ServerStream) error {
		return errors.New("transport closed")
	})
	if err == nil {
		t.Fatalf("expected handler error to propagate")
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("AttitudeService", "Session", "Unknown")); got != 1 {
		t.Fatalf("stream request counter = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesAttitudeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAttitudeCollector(reg)
	if err != nil {
		t.Fatalf("NewAttitudeCollector: %v", err)
	}
	collector.SetActiveSessions(3)
	collector.IncStationUpdates()
	collector.ObserveResult("enu", OutcomeOK)
	collector.ObserveResult("", OutcomeRejected)
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"attitude_rpc_requests_total",
		"attitude_rpc_duration_seconds",
		"attitude_active_sessions 3",
		"attitude_station_updates_total 1",
		`attitude_results_total{frame="enu",outcome="ok"} 1`,
		`attitude_results_total{frame="unknown",outcome="rejected"} 1`,
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func TestCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewAttitudeCollector(reg)
	if err != nil {
		t.Fatalf("first NewAttitudeCollector: %v", err)
	}
	second, err := NewAttitudeCollector(reg)
	if err != nil {
		t.Fatalf("second NewAttitudeCollector: %v", err)
	}
	first.IncStationUpdates()
	second.IncStationUpdates()
	if got := testutil.ToFloat64(first.StationUpdates); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *AttitudeCollector
	c.SetActiveSessions(1)
	c.IncStationUpdates()
	c.ObserveResult("enu", OutcomeOK)

	var p *PipelineCollector
	p.ObserveCompute(time.Millisecond)
	p.SetSubscribers(2)
	p.IncDropped()
	p.IncJournalErrors()
}

func TestPipelineCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}
	c.ObserveCompute(20 * time.Microsecond)
	c.SetSubscribers(2)
	c.IncDropped()
	c.IncJournalErrors()

	if got := testutil.ToFloat64(c.WatchSubscribers); got != 2 {
		t.Fatalf("subscribers = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.DroppedResults); got != 1 {
		t.Fatalf("dropped = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "attitude_compute_duration_seconds", nil); count != 1 {
		t.Fatalf("compute sample_count = %d, want 1", count)
	}
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		in, service, method string
	}{
		{"/attitude.v1.AttitudeService/Session", "AttitudeService", "Session"},
		{"AttitudeService/TimeInfo", "AttitudeService", "TimeInfo"},
		{"", "unknown", "unknown"},
		{"/nomethod", "unknown", "unknown"},
	}
	for _, tt := range tests {
		service, method := SplitMethod(tt.in)
		if service != tt.service || method != tt.method {
			t.Fatalf("SplitMethod(%q) = %q, %q; want %q, %q", tt.in, service, method, tt.service, tt.method)
		}
	}
}

func TestApplyTracingEnv(t *testing.T) {
	t.Setenv("ATTITUDE_TRACING_ENABLED", "true")
	t.Setenv("ATTITUDE_TRACING_EXPORTER", "OTLP")
	t.Setenv("ATTITUDE_TRACING_SAMPLE_RATIO", "2")
	t.Setenv("ATTITUDE_OTLP_ENDPOINT", "collector:4317")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.Endpoint != "collector:4317" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.SampleRatio != 1 || cfg.ServiceName != "attitude-grpc" {
		t.Fatalf("out-of-range ratio should keep default: %+v", cfg)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), DefaultTracingConfig(), nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil); err == nil {
		t.Fatalf("expected unsupported exporter error")
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
