package assistant

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

// Runtime holds what sessions share: the base engine configuration, the
// narrator, the store and the event sink.
type Runtime struct {
	Config          crosswalk.Config
	Narrator        narration.Narrator
	NarratorTimeout time.Duration
	Store           Recorder
	Sink            events.Sink
	Clock           timeutil.Clock
	Logger          zerolog.Logger
}

// SessionSpec describes a session to create. Zero fields take the runtime
// defaults.
type SessionSpec struct {
	ID       string             `json:"id,omitempty"`
	Language crosswalk.Language `json:"language,omitempty"`
	Source   string             `json:"source,omitempty"`
}

// NewSession builds and registers a session with the store.
func (rt *Runtime) NewSession(ctx context.Context, spec SessionSpec) (*Session, error) {
	cfg := rt.Config
	if spec.Language != "" {
		lang, err := crosswalk.ParseLanguage(string(spec.Language))
		if err != nil {
			return nil, err
		}
		cfg.Language = lang
	}
	engine, err := crosswalk.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	if spec.ID == "" {
		spec.ID = uuid.New().String()
	}
	clock := rt.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	var narrator narration.Narrator = narration.NewLogNarrator(rt.Logger)
	if rt.Narrator != nil {
		narrator = rt.Narrator
	}
	l := rt.Logger.With().Str("session", spec.ID).Logger()
	dispatcher := narration.NewDispatcher(narrator, narration.DispatcherOptions{
		Timeout: rt.NarratorTimeout,
		Clock:   clock,
		Logger:  &l,
	})

	sess, err := NewSession(SessionOptions{
		ID:        spec.ID,
		Source:    spec.Source,
		Engine:    engine,
		Announcer: dispatcher,
		Store:     rt.Store,
		Sink:      rt.Sink,
		Clock:     clock,
		Logger:    &rt.Logger,
	})
	if err != nil {
		_ = dispatcher.Close(ctx)
		return nil, err
	}
	if rt.Store != nil {
		rec := db.SessionRecord{
			ID:        sess.ID(),
			Language:  string(cfg.Language),
			Source:    spec.Source,
			CreatedAt: sess.CreatedAt(),
		}
		if err := rt.Store.CreateSession(ctx, rec); err != nil {
			_ = dispatcher.Close(ctx)
			return nil, err
		}
	}
	return sess, nil
}

// Registry tracks live sessions by ID.
type Registry struct {
	rt *Runtime

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry that builds sessions with rt.
func NewRegistry(rt *Runtime) *Registry {
	return &Registry{rt: rt, sessions: make(map[string]*Session)}
}

// Create builds and registers a session. It fails with ErrSessionExists if
// spec.ID is already live.
func (r *Registry) Create(ctx context.Context, spec SessionSpec) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[spec.ID]; spec.ID != "" && exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, spec.ID)
	}
	sess, err := r.rt.NewSession(ctx, spec)
	if err != nil {
		return nil, err
	}
	r.sessions[sess.ID()] = sess
	return sess, nil
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// GetOrCreate returns the session with spec.ID, creating it if needed.
func (r *Registry) GetOrCreate(ctx context.Context, spec SessionSpec) (*Session, error) {
	if sess, err := r.Get(spec.ID); err == nil {
		return sess, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[spec.ID]; ok {
		return sess, nil
	}
	sess, err := r.rt.NewSession(ctx, spec)
	if err != nil {
		return nil, err
	}
	r.sessions[sess.ID()] = sess
	return sess, nil
}

// List returns the live sessions ordered by creation time.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out
}

// Remove closes and forgets the session with id.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.Close(ctx)
}

// Close closes every session.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}
