// Package events publishes verdict and alert records to downstream
// consumers.
package events

import (
	"context"
	"sync"
	"time"
)

// Record types.
const (
	TypeVerdict = "verdict"
	TypeAlert   = "alert"
)

// Record is one published event. Verdict records are emitted for every
// frame; alert records only when the alert machine fires.
type Record struct {
	Type         string    `json:"type"`
	SessionID    string    `json:"session_id"`
	FrameIndex   int64     `json:"frame_index"`
	Timestamp    time.Time `json:"timestamp"`
	Status       string    `json:"status"`
	Safe         bool      `json:"safe"`
	VehicleCount int       `json:"vehicle_count"`
	AlertID      string    `json:"alert_id,omitempty"`
	Message      string    `json:"message,omitempty"`
	Language     string    `json:"language,omitempty"`
}

// Sink receives records. Publish must not block on slow consumers.
type Sink interface {
	Publish(ctx context.Context, r Record) error
	Close() error
}

// NopSink discards records.
type NopSink struct{}

func (NopSink) Publish(context.Context, Record) error { return nil }
func (NopSink) Close() error                          { return nil }

// MemorySink keeps records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

func (s *MemorySink) Publish(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *MemorySink) Close() error { return nil }

// Records returns a copy of everything published.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// OfType returns the published records of one type.
func (s *MemorySink) OfType(typ string) []Record {
	var out []Record
	for _, r := range s.Records() {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}
