package otel_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	toolrunotel "github.com/petal-labs/toolrun/otel"
	"github.com/petal-labs/toolrun/tool"
)

// newTestMeter returns a meter backed by a manual reader for collecting metrics in tests.
func newTestMeter() (*metric.ManualReader, *metric.MeterProvider) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return reader, mp
}

// collectMetrics reads all metrics from the reader.
func collectMetrics(t *testing.T, reader *metric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

// findMetric searches for a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func TestToolObserverRecordsMetrics(t *testing.T) {
	reader, mp := newTestMeter()
	meter := mp.Meter("test-tool-observer")
	tracer := noop.NewTracerProvider().Tracer("test-tool-observer")

	observer, err := toolrunotel.NewToolObserver(meter, tracer)
	if err != nil {
		t.Fatalf("NewToolObserver() error = %v", err)
	}

	observer.ObserveInvoke(tool.InvokeObservation{
		ToolName:   "fetch_items",
		ToolType:   tool.TypeHTTP,
		Primitive:  tool.PrimitiveHTTP,
		Attempts:   2,
		DurationMS: 120,
		Success:    false,
		ErrorCode:  tool.ErrorCodeHTTP,
	})
	observer.ObserveRetry(tool.RetryObservation{
		ToolName:  "fetch_items",
		Primitive: tool.PrimitiveHTTP,
		Attempt:   1,
		ErrorCode: tool.ErrorCodeHTTP,
	})
	observer.ObserveHealth(tool.HealthObservation{
		ToolName:      "fetch_items",
		State:         tool.HealthUnhealthy,
		FailureCount:  3,
		DurationMS:    45,
		PreviousState: tool.HealthHealthy,
		ErrorCode:     tool.ErrorCodeHTTP,
	})

	rm := collectMetrics(t, reader)

	invocations := findMetric(rm, "toolrun.tool.invocations")
	if invocations == nil {
		t.Fatal("toolrun.tool.invocations metric not found")
	}
	if _, ok := invocations.Data.(metricdata.Sum[int64]); !ok {
		t.Fatalf("toolrun.tool.invocations type = %T, want Sum[int64]", invocations.Data)
	}

	retries := findMetric(rm, "toolrun.tool.retries")
	if retries == nil {
		t.Fatal("toolrun.tool.retries metric not found")
	}
	if _, ok := retries.Data.(metricdata.Sum[int64]); !ok {
		t.Fatalf("toolrun.tool.retries type = %T, want Sum[int64]", retries.Data)
	}

	health := findMetric(rm, "toolrun.tool.health.checks")
	if health == nil {
		t.Fatal("toolrun.tool.health.checks metric not found")
	}
	if _, ok := health.Data.(metricdata.Sum[int64]); !ok {
		t.Fatalf("toolrun.tool.health.checks type = %T, want Sum[int64]", health.Data)
	}

	latency := findMetric(rm, "toolrun.tool.latency")
	if latency == nil {
		t.Fatal("toolrun.tool.latency metric not found")
	}
	if _, ok := latency.Data.(metricdata.Histogram[float64]); !ok {
		t.Fatalf("toolrun.tool.latency type = %T, want Histogram[float64]", latency.Data)
	}
}

func TestToolObserverEmitsSpans(t *testing.T) {
	_, mp := newTestMeter()
	meter := mp.Meter("test-tool-observer-spans")

	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test-tool-observer-spans")

	observer, err := toolrunotel.NewToolObserver(meter, tracer)
	if err != nil {
		t.Fatalf("NewToolObserver() error = %v", err)
	}

	observer.ObserveInvoke(tool.InvokeObservation{
		ToolName:   "greet",
		ToolType:   tool.TypeSubprocess,
		Primitive:  tool.PrimitiveSubprocess,
		DurationMS: 10,
		Success:    true,
	})
	observer.ObserveInvoke(tool.InvokeObservation{
		ToolName:  "greet",
		ToolType:  tool.TypeSubprocess,
		Primitive: tool.PrimitiveSubprocess,
		Success:   false,
		ErrorCode: tool.ErrorCodeSubprocess,
	})

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	if spans[0].Name() != "tool.invoke" {
		t.Fatalf("span name = %q, want %q", spans[0].Name(), "tool.invoke")
	}
	if spans[0].Status().Code.String() == spans[1].Status().Code.String() {
		t.Fatal("success and failure spans report the same status code")
	}
}
