package obs

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce       sync.Once
	eventCounter      metric.Int64Counter
	reconnectCounter  metric.Int64Counter
	malformedCounter  metric.Int64Counter
	connectLatencyHst metric.Float64Histogram
)

func installMetrics(m meter) {
	metricsOnce.Do(func() {
		if m == nil {
			return
		}
		eventCounter, _ = m.Int64Counter("lookoutstream.events",
			metric.WithDescription("Events decoded from the stream"))
		reconnectCounter, _ = m.Int64Counter("lookoutstream.reconnects",
			metric.WithDescription("Reconnection attempts"))
		malformedCounter, _ = m.Int64Counter("lookoutstream.frames.malformed",
			metric.WithDescription("Frames skipped as malformed"))
		connectLatencyHst, _ = m.Float64Histogram("lookoutstream.connect.latency_ms",
			metric.WithDescription("Stream connection establishment latency (ms)"))
	})
}

type meter interface {
	Int64Counter(string, ...metric.Int64CounterOption) (metric.Int64Counter, error)
	Float64Histogram(string, ...metric.Float64HistogramOption) (metric.Float64Histogram, error)
}

// RecordEvent counts one decoded event.
func RecordEvent(attrs ...attribute.KeyValue) {
	if eventCounter != nil {
		eventCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	}
}

// RecordReconnect counts one reconnection attempt.
func RecordReconnect(attrs ...attribute.KeyValue) {
	if reconnectCounter != nil {
		reconnectCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	}
}

// RecordMalformedFrame counts one skipped frame.
func RecordMalformedFrame(attrs ...attribute.KeyValue) {
	if malformedCounter != nil {
		malformedCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	}
}

// RecordConnectLatency records how long one connection attempt took to
// reach a streamable response.
func RecordConnectLatency(d time.Duration, attrs ...attribute.KeyValue) {
	if connectLatencyHst != nil {
		connectLatencyHst.Record(context.Background(), float64(d)/float64(time.Millisecond),
			metric.WithAttributes(attrs...))
	}
}
