package obs

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestInitAndRecord(t *testing.T) {
	ctx := context.Background()

	opts := DefaultOptions()
	opts.ServiceName = "obs-test"
	shutdown, err := Init(ctx, opts)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()

	opCtx, rec := StartOp(ctx, "obs.test", attribute.String("k", "v"))
	if opCtx == nil || rec == nil {
		t.Fatal("StartOp returned nil context or recorder")
	}
	rec.AddAttributes(attribute.Int("n", 1))
	rec.End(errors.New("recorded failure"))

	RecordEvent(attribute.String("event.type", "DEVICE"))
	RecordReconnect()
	RecordMalformedFrame()
	RecordConnectLatency(42 * time.Millisecond)
}

func TestRecordersAreSafeWithoutInit(t *testing.T) {
	// Package-level recorders must be usable before (or without) Init.
	RecordEvent()
	RecordReconnect()
	RecordMalformedFrame()
	RecordConnectLatency(time.Millisecond)

	_, rec := StartOp(context.Background(), "obs.uninitialized")
	rec.End(nil)
}
