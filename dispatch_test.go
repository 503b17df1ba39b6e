package lookoutstream

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeMatches(t *testing.T) {
	all := []EventType{EventTypeDevice, EventTypeThreat, EventTypeAudit}

	for _, typ := range all {
		assert.True(t, typeMatches(typ, nil), "empty subscription passes %s", typ)
	}

	requested := []EventType{EventTypeDevice, EventTypeAudit}
	assert.True(t, typeMatches(EventTypeDevice, requested))
	assert.True(t, typeMatches(EventTypeAudit, requested))
	assert.False(t, typeMatches(EventTypeThreat, requested))
}

func TestDispatchFilters(t *testing.T) {
	req := StreamRequest{EventTypes: []EventType{EventTypeThreat}}
	var got []Event
	d := newDispatcher(req, func(ev Event) { got = append(got, ev) }, discardLogger())

	delivered := d.dispatch(Event{ID: "1", Type: EventTypeDevice, Payload: json.RawMessage(`{}`)})
	assert.False(t, delivered)
	delivered = d.dispatch(Event{ID: "2", Type: EventTypeThreat, Payload: json.RawMessage(`{}`)})
	assert.True(t, delivered)

	if assert.Len(t, got, 1) {
		assert.Equal(t, "2", got[0].ID)
	}
}

func TestDispatchContainsConsumerPanic(t *testing.T) {
	d := newDispatcher(StreamRequest{}, func(Event) { panic("consumer bug") }, discardLogger())

	assert.NotPanics(t, func() {
		d.dispatch(Event{ID: "1", Type: EventTypeDevice, Payload: json.RawMessage(`{}`)})
	})
}

func TestDispatchNilConsumer(t *testing.T) {
	d := newDispatcher(StreamRequest{}, nil, discardLogger())
	assert.False(t, d.dispatch(Event{ID: "1", Type: EventTypeDevice}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
