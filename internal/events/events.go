// Package events fans sync progress out to SSE subscribers.
package events

import (
	"encoding/json"
	"time"
)

// Event types published during a sync run.
const (
	TypePing           = "ping"
	TypeSyncStarted    = "sync_started"
	TypeSourceFinished = "sync_source_finished"
	TypeSyncFinished   = "sync_finished"
	TypeSyncFailed     = "sync_failed"
)

// Version of the envelope below.
const Version = 1

type Event struct {
	Type    string          `json:"type"`
	Version int             `json:"v"`
	At      time.Time       `json:"at"`
	RunID   string          `json:"run_id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// MakeEvent renders an envelope as a JSON string ready to publish.
func MakeEvent(typ, runID string, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err == nil {
			raw = b
		}
	}
	e := Event{
		Type:    typ,
		Version: Version,
		At:      time.Now().UTC(),
		RunID:   runID,
		Data:    raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}
