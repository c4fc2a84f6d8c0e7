// Package assistant runs crosswalk sessions: it threads session state
// through the decision engine, hands alerts to a narration dispatcher and
// records what happened.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/db"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/events"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/narration"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/timeutil"
)

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when creating a session whose ID is live.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionClosed is returned by HandleFrame after Close.
	ErrSessionClosed = errors.New("session closed")
)

// Announcer is the narration side of a session. *narration.Dispatcher
// implements it.
type Announcer interface {
	Busy() bool
	Submit(ev crosswalk.AlertEvent) error
	DrainFailures() []narration.Failure
	Close(ctx context.Context) error
}

// Recorder persists frames and alerts. *db.DB implements it.
type Recorder interface {
	CreateSession(ctx context.Context, s db.SessionRecord) error
	CloseSession(ctx context.Context, id string, at time.Time) error
	RecordFrame(ctx context.Context, f db.FrameRecord) error
	RecordAlert(ctx context.Context, a db.AlertRecord) error
	MarkAlertFailed(ctx context.Context, alertID string, narrationErr string) error
}

// Result is a frame's decision plus the non-fatal problems met while acting
// on it.
type Result struct {
	SessionID string `json:"session_id"`
	crosswalk.FrameResult
	Display  string   `json:"display"`
	Warnings []string `json:"warnings,omitempty"`
}

// Session is one pedestrian's frame loop. HandleFrame calls are serialized.
type Session struct {
	id        string
	source    string
	createdAt time.Time

	engine   *crosswalk.Engine
	announce Announcer
	store    Recorder
	sink     events.Sink
	clock    timeutil.Clock
	log      zerolog.Logger
	newID    func() string

	mu     sync.Mutex
	state  crosswalk.SessionState
	last   crosswalk.Status
	closed bool
}

// SessionOptions configure NewSession. Engine and Announcer are required.
type SessionOptions struct {
	ID        string
	Source    string
	Engine    *crosswalk.Engine
	Announcer Announcer
	Store     Recorder
	Sink      events.Sink
	Clock     timeutil.Clock
	Logger    *zerolog.Logger
}

// NewSession builds a session. A missing ID is generated.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Engine == nil {
		return nil, errors.New("session requires an engine")
	}
	if opts.Announcer == nil {
		return nil, errors.New("session requires an announcer")
	}
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if opts.Sink == nil {
		opts.Sink = events.NopSink{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	l := zerolog.Nop()
	if opts.Logger != nil {
		l = *opts.Logger
	}
	return &Session{
		id:        opts.ID,
		source:    opts.Source,
		createdAt: opts.Clock.Now(),
		engine:    opts.Engine,
		announce:  opts.Announcer,
		store:     opts.Store,
		sink:      opts.Sink,
		clock:     opts.Clock,
		log:       l.With().Str("session", opts.ID).Logger(),
		newID:     func() string { return uuid.New().String() },
	}, nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Language returns the session's alert language.
func (s *Session) Language() crosswalk.Language { return s.engine.Config().Language }

// CreatedAt returns when the session was built.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// State returns a copy of the session state.
func (s *Session) State() crosswalk.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.PreviousVehicles = append([]crosswalk.VehiclePosition(nil), s.state.PreviousVehicles...)
	return st
}

// Busy reports whether an alert is still being narrated.
func (s *Session) Busy() bool { return s.announce.Busy() }

// HandleFrame runs one frame through the engine and acts on the outcome.
// Narration, storage and publishing failures never fail the frame; they are
// returned as warnings.
func (s *Session) HandleFrame(ctx context.Context, frame crosswalk.Frame) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Result{}, ErrSessionClosed
	}

	var warnings []string
	warn := func(err error) {
		warnings = append(warnings, err.Error())
	}
	for _, f := range s.announce.DrainFailures() {
		warn(errors.New(f.String()))
		if s.store != nil && f.Event.ID != "" {
			if err := s.store.MarkAlertFailed(ctx, f.Event.ID, f.Err.Error()); err != nil {
				warn(err)
			}
		}
	}

	now := s.clock.Now()
	if frame.Timestamp.IsZero() {
		frame.Timestamp = now
	}

	next, res := s.engine.Step(s.state, frame, now, s.announce.Busy())
	s.state = next

	for _, r := range res.Rejections {
		s.log.Debug().Err(r.Err).Int("detection", r.Index).Str("label", r.Label).Msg("detection rejected")
	}
	if res.Verdict.Status != s.last {
		s.log.Info().
			Str("from", string(s.last)).
			Str("to", string(res.Verdict.Status)).
			Int64("frame", res.Index).
			Int("vehicles", res.Verdict.VehicleCount).
			Msg("verdict changed")
		s.last = res.Verdict.Status
	}

	if res.Alert != nil {
		res.Alert.ID = s.newID()
		if err := s.announce.Submit(*res.Alert); err != nil {
			warn(fmt.Errorf("alert %s not narrated: %w", res.Alert.ID, err))
		} else {
			s.log.Info().Str("alert", res.Alert.ID).Str("key", string(res.Alert.Key)).Msg(res.Alert.Text)
		}
	}

	if s.store != nil {
		if err := s.store.RecordFrame(ctx, s.frameRecord(res)); err != nil {
			warn(err)
		}
		if res.Alert != nil {
			if err := s.store.RecordAlert(ctx, s.alertRecord(res.Alert)); err != nil {
				warn(err)
			}
		}
	}

	if err := s.sink.Publish(ctx, s.verdictEvent(res)); err != nil {
		warn(fmt.Errorf("publish verdict: %w", err))
	}
	if res.Alert != nil {
		if err := s.sink.Publish(ctx, s.alertEvent(res)); err != nil {
			warn(fmt.Errorf("publish alert: %w", err))
		}
	}

	if len(warnings) > 0 {
		s.log.Warn().Strs("warnings", warnings).Int64("frame", res.Index).Msg("frame handled with warnings")
	}

	return Result{
		SessionID:   s.id,
		FrameResult: res,
		Display:     res.Verdict.Summary(),
		Warnings:    warnings,
	}, nil
}

// Close stops the session, waiting for an in-flight narration up to ctx.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if err := s.announce.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close narration: %w", err))
	}
	// Close waits for the worker, so the last failures are in by now.
	for _, f := range s.announce.DrainFailures() {
		s.log.Warn().Err(f.Err).Str("alert", f.Event.ID).Msg("narration failed during close")
		if s.store != nil && f.Event.ID != "" {
			if err := s.store.MarkAlertFailed(ctx, f.Event.ID, f.Err.Error()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if s.store != nil {
		if err := s.store.CloseSession(ctx, s.id, s.clock.Now()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) frameRecord(res crosswalk.FrameResult) db.FrameRecord {
	return db.FrameRecord{
		SessionID:             s.id,
		FrameIndex:            res.Index,
		Timestamp:             res.Timestamp,
		Status:                string(res.Verdict.Status),
		Rule:                  int(res.Verdict.Rule),
		Safe:                  res.Verdict.Safe(),
		VehicleCount:          res.Verdict.VehicleCount,
		Moving:                res.Motion.Moving,
		VehicleOnCrosswalk:    res.Occupancy.Vehicle,
		PedestrianOnCrosswalk: res.Occupancy.Pedestrian,
		MaxDisplacement:       res.Motion.MaxDisplacement,
		Rejected:              len(res.Rejections),
	}
}

func (s *Session) alertRecord(ev *crosswalk.AlertEvent) db.AlertRecord {
	return db.AlertRecord{
		ID:         ev.ID,
		SessionID:  s.id,
		FrameIndex: ev.FrameIdx,
		Status:     string(ev.Key),
		Message:    ev.Text,
		Language:   string(ev.Language),
		EmittedAt:  ev.EmittedAt,
	}
}

func (s *Session) verdictEvent(res crosswalk.FrameResult) events.Record {
	return events.Record{
		Type:         events.TypeVerdict,
		SessionID:    s.id,
		FrameIndex:   res.Index,
		Timestamp:    res.Timestamp,
		Status:       string(res.Verdict.Status),
		Safe:         res.Verdict.Safe(),
		VehicleCount: res.Verdict.VehicleCount,
	}
}

func (s *Session) alertEvent(res crosswalk.FrameResult) events.Record {
	r := s.verdictEvent(res)
	r.Type = events.TypeAlert
	r.Timestamp = res.Alert.EmittedAt
	r.AlertID = res.Alert.ID
	r.Message = res.Alert.Text
	r.Language = string(res.Alert.Language)
	return r
}
