package narration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/timeutil"
)

// DefaultTimeout bounds a single narration.
const DefaultTimeout = 5 * time.Second

// Failure is a narration that did not complete.
type Failure struct {
	Event crosswalk.AlertEvent
	Err   error
	At    time.Time
}

func (f Failure) String() string {
	return fmt.Sprintf("narration of %q (%s) failed: %v", f.Event.Key, f.Event.Language, f.Err)
}

// Stats counts dispatcher outcomes.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Spoken    int64 `json:"spoken"`
	Failed    int64 `json:"failed"`
	TimedOut  int64 `json:"timed_out"`
	Rejected  int64 `json:"rejected"`
}

// DispatcherOptions configure a Dispatcher.
type DispatcherOptions struct {
	// Timeout bounds each narration. Zero means DefaultTimeout.
	Timeout time.Duration
	Clock   timeutil.Clock
	Logger  *zerolog.Logger
}

// Dispatcher speaks alerts one at a time on a background worker. Submit
// never blocks; Busy reports whether an alert is in flight. A narration
// that outlives its timeout is abandoned: the dispatcher becomes idle even
// if the narrator never returns.
type Dispatcher struct {
	narrator Narrator
	timeout  time.Duration
	clock    timeutil.Clock
	log      zerolog.Logger

	jobs chan crosswalk.AlertEvent
	busy atomic.Bool
	done chan struct{}

	mu       sync.Mutex
	closed   bool
	failures []Failure
	stats    Stats
}

// NewDispatcher starts a dispatcher for n.
func NewDispatcher(n Narrator, opts DispatcherOptions) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	l := zerolog.Nop()
	if opts.Logger != nil {
		l = *opts.Logger
	}
	d := &Dispatcher{
		narrator: n,
		timeout:  opts.Timeout,
		clock:    opts.Clock,
		log:      l,
		jobs:     make(chan crosswalk.AlertEvent, 1),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Busy reports whether an alert is being spoken.
func (d *Dispatcher) Busy() bool {
	return d.busy.Load()
}

// Submit hands ev to the worker. It returns ErrBusy if an alert is still in
// flight and ErrClosed after Close.
func (d *Dispatcher) Submit(ev crosswalk.AlertEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if !d.busy.CompareAndSwap(false, true) {
		d.stats.Rejected++
		return ErrBusy
	}
	d.stats.Submitted++
	d.jobs <- ev
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.jobs {
		err := d.speak(ev)
		d.record(ev, err)
		d.busy.Store(false)
	}
}

func (d *Dispatcher) speak(ev crosswalk.AlertEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- d.narrator.Speak(ctx, ev)
	}()

	select {
	case err := <-result:
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, d.timeout)
		}
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w after %s", ErrTimeout, d.timeout)
	}
}

func (d *Dispatcher) record(ev crosswalk.AlertEvent, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		d.stats.Spoken++
		d.log.Debug().Str("key", string(ev.Key)).Msg("alert spoken")
		return
	}
	d.stats.Failed++
	if errors.Is(err, ErrTimeout) {
		d.stats.TimedOut++
	}
	d.failures = append(d.failures, Failure{Event: ev, Err: err, At: d.clock.Now()})
	d.log.Warn().Err(err).Str("key", string(ev.Key)).Str("language", string(ev.Language)).Msg("narration failed")
}

// DrainFailures returns and forgets the failures recorded since the last
// call.
func (d *Dispatcher) DrainFailures() []Failure {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.failures
	d.failures = nil
	return out
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close stops accepting alerts and waits for the worker to finish the alert
// in flight, or for ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
