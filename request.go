package lookoutstream

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Mode selects between live tailing and bounded historical replay.
type Mode string

const (
	ModeCurrent    Mode = "CURRENT"
	ModeHistorical Mode = "HISTORICAL"
)

// EventType enumerates the event categories the vendor stream carries.
type EventType string

const (
	EventTypeDevice EventType = "DEVICE"
	EventTypeThreat EventType = "THREAT"
	EventTypeAudit  EventType = "AUDIT"
)

// HistoricalWindow is the farthest back a historical replay may start.
const HistoricalWindow = 10 * 24 * time.Hour

var knownEventTypes = map[EventType]struct{}{
	EventTypeDevice: {},
	EventTypeThreat: {},
	EventTypeAudit:  {},
}

// StreamRequest is an immutable description of one stream subscription.
// The LastEventID cursor is the only field rebuilt per reconnect attempt,
// and the session manager does that on a copy.
type StreamRequest struct {
	Mode        Mode
	StartTime   time.Time
	EventTypes  []EventType
	LastEventID string
}

// RequestOption configures an optional StreamRequest field.
type RequestOption func(*StreamRequest)

// WithStartTime sets the historical replay start. Required for
// ModeHistorical, rejected for ModeCurrent.
func WithStartTime(t time.Time) RequestOption {
	return func(r *StreamRequest) { r.StartTime = t }
}

// WithEventTypes restricts the subscription to the given types.
// An empty set subscribes to everything.
func WithEventTypes(types ...EventType) RequestOption {
	return func(r *StreamRequest) { r.EventTypes = append([]EventType(nil), types...) }
}

// WithLastEventID resumes the stream strictly after the given event id.
func WithLastEventID(id string) RequestOption {
	return func(r *StreamRequest) { r.LastEventID = id }
}

// NewStreamRequest builds a validated StreamRequest against the current
// wall clock.
func NewStreamRequest(mode Mode, opts ...RequestOption) (StreamRequest, error) {
	return NewStreamRequestAt(time.Now(), mode, opts...)
}

// NewStreamRequestAt is NewStreamRequest with an explicit clock. It is a
// pure function of its inputs.
func NewStreamRequestAt(now time.Time, mode Mode, opts ...RequestOption) (StreamRequest, error) {
	r := StreamRequest{Mode: mode}
	for _, opt := range opts {
		opt(&r)
	}

	switch mode {
	case ModeCurrent, ModeHistorical:
	default:
		return StreamRequest{}, NewError(ErrValidation, fmt.Sprintf("unknown mode %q", mode))
	}

	if mode == ModeHistorical {
		if r.StartTime.IsZero() {
			return StreamRequest{}, NewError(ErrValidation, "historical mode requires a start time")
		}
		if r.StartTime.After(now) {
			return StreamRequest{}, NewError(ErrValidation, "start time is in the future")
		}
		if now.Sub(r.StartTime) > HistoricalWindow {
			return StreamRequest{}, NewError(ErrValidation, "start time must be within the last 10 days")
		}
	} else if !r.StartTime.IsZero() {
		return StreamRequest{}, NewError(ErrValidation, "start time is only valid in historical mode")
	}

	for _, t := range r.EventTypes {
		if _, ok := knownEventTypes[t]; !ok {
			return StreamRequest{}, NewError(ErrValidation, fmt.Sprintf("unknown event type %q", t))
		}
	}
	return r, nil
}

// query builds the vendor query parameters for a connection attempt using
// the given resume cursor.
func (r StreamRequest) query(cursor string) url.Values {
	q := url.Values{}
	if r.Mode == ModeHistorical {
		q.Set("start_time", r.StartTime.UTC().Format(time.RFC3339))
	}
	if cursor != "" {
		q.Set("id", cursor)
	}
	if len(r.EventTypes) > 0 {
		names := make([]string, 0, len(r.EventTypes))
		for _, t := range r.EventTypes {
			names = append(names, string(t))
		}
		q.Set("types", strings.Join(names, ","))
	}
	return q
}
