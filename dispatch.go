package lookoutstream

import (
	"log/slog"
)

// dispatcher filters decoded events by subscription type and hands them to
// the caller's consumer. The consumer runs inside a recover boundary: a
// misbehaving consumer must not break the read loop.
type dispatcher struct {
	req     StreamRequest
	onEvent func(Event)
	logger  *slog.Logger
}

func newDispatcher(req StreamRequest, onEvent func(Event), logger *slog.Logger) *dispatcher {
	return &dispatcher{req: req, onEvent: onEvent, logger: logger}
}

// dispatch forwards the event if its type is subscribed. It reports
// whether the event was delivered.
func (d *dispatcher) dispatch(ev Event) bool {
	if !typeMatches(ev.Type, d.req.EventTypes) {
		return false
	}
	if d.onEvent == nil {
		return false
	}
	d.deliver(ev)
	return true
}

func (d *dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event consumer panicked",
				"event_id", ev.ID,
				"event_type", string(ev.Type),
				"panic", r)
		}
	}()
	d.onEvent(ev)
}

// typeMatches is the pure filtering rule: an empty subscription passes
// every type, a non-empty one passes only its members.
func typeMatches(t EventType, requested []EventType) bool {
	if len(requested) == 0 {
		return true
	}
	for _, want := range requested {
		if want == t {
			return true
		}
	}
	return false
}
