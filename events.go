package lookoutstream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/canopysec/lookoutstream/sse"
)

// Event is one decoded stream record. Immutable once constructed.
type Event struct {
	// ID is the vendor-assigned event id. It is opaque to the client and
	// serves only as the resume cursor.
	ID string `json:"id"`

	// Type is the event category (DEVICE, THREAT, AUDIT).
	Type EventType `json:"type"`

	// Payload is the raw JSON body of the event.
	Payload json.RawMessage `json:"payload"`

	// ReceivedAt is when this client decoded the event.
	ReceivedAt time.Time `json:"received_at"`
}

// eventFromFrame converts a wire frame into a domain Event. Frames whose
// payload is not valid JSON are rejected as malformed; the session manager
// skips them without aborting the stream.
func eventFromFrame(f sse.Frame, now time.Time) (Event, error) {
	if !json.Valid(f.Data) {
		return Event{}, NewError(ErrMalformedFrame,
			fmt.Sprintf("event %q carries invalid JSON payload", f.ID))
	}
	return Event{
		ID:         f.ID,
		Type:       EventType(f.Event),
		Payload:    json.RawMessage(f.Data),
		ReceivedAt: now,
	}, nil
}
