package lookoutstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStreamRequestValidation(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mode    Mode
		opts    []RequestOption
		wantErr bool
	}{
		{
			name: "current mode no options",
			mode: ModeCurrent,
		},
		{
			name: "historical at window boundary",
			mode: ModeHistorical,
			opts: []RequestOption{WithStartTime(now.Add(-HistoricalWindow + time.Second))},
		},
		{
			name:    "historical beyond window",
			mode:    ModeHistorical,
			opts:    []RequestOption{WithStartTime(now.Add(-HistoricalWindow - time.Second))},
			wantErr: true,
		},
		{
			name:    "historical without start time",
			mode:    ModeHistorical,
			wantErr: true,
		},
		{
			name:    "start time in the future",
			mode:    ModeHistorical,
			opts:    []RequestOption{WithStartTime(now.Add(time.Hour))},
			wantErr: true,
		},
		{
			name:    "start time in current mode",
			mode:    ModeCurrent,
			opts:    []RequestOption{WithStartTime(now.Add(-time.Hour))},
			wantErr: true,
		},
		{
			name: "known event types",
			mode: ModeCurrent,
			opts: []RequestOption{WithEventTypes(EventTypeDevice, EventTypeThreat, EventTypeAudit)},
		},
		{
			name:    "unknown event type",
			mode:    ModeCurrent,
			opts:    []RequestOption{WithEventTypes(EventType("MALWARE"))},
			wantErr: true,
		},
		{
			name:    "unknown mode",
			mode:    Mode("REPLAY"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStreamRequestAt(now, tt.mode, tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidationError(err), "expected validation error, got %v", err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestStreamRequestQuery(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	start := now.Add(-24 * time.Hour)

	req, err := NewStreamRequestAt(now, ModeHistorical,
		WithStartTime(start),
		WithEventTypes(EventTypeDevice, EventTypeAudit),
		WithLastEventID("evt-41"),
	)
	require.NoError(t, err)

	q := req.query(req.LastEventID)
	assert.Equal(t, "2026-03-09T12:00:00Z", q.Get("start_time"))
	assert.Equal(t, "evt-41", q.Get("id"))
	assert.Equal(t, "DEVICE,AUDIT", q.Get("types"))
}

func TestStreamRequestQueryCurrentMode(t *testing.T) {
	req, err := NewStreamRequestAt(time.Now(), ModeCurrent)
	require.NoError(t, err)

	q := req.query("")
	assert.Empty(t, q.Get("start_time"))
	assert.Empty(t, q.Get("id"))
	assert.Empty(t, q.Get("types"))
}
