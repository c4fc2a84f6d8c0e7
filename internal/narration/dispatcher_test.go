package narration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
)

func alert(key crosswalk.Status) crosswalk.AlertEvent {
	return crosswalk.AlertEvent{Key: key, Text: string(key), Language: crosswalk.LangEnglish, Speech: "en"}
}

type recordingNarrator struct {
	mu     sync.Mutex
	spoken []crosswalk.AlertEvent
	gate   chan struct{}
	err    error
}

func (r *recordingNarrator) Speak(ctx context.Context, ev crosswalk.AlertEvent) error {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spoken = append(r.spoken, ev)
	return r.err
}

func (r *recordingNarrator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spoken)
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func TestDispatcher_SpeaksAndBecomesIdle(t *testing.T) {
	t.Parallel()

	n := &recordingNarrator{}
	d := NewDispatcher(n, DispatcherOptions{Timeout: time.Second})

	require.NoError(t, d.Submit(alert(crosswalk.StatusClear)))
	assert.Eventually(t, func() bool { return !d.Busy() && n.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	closeDispatcher(t, d)
	assert.Equal(t, Stats{Submitted: 1, Spoken: 1}, d.Stats())
	assert.Empty(t, d.DrainFailures())
}

func TestDispatcher_RejectsWhileBusy(t *testing.T) {
	t.Parallel()

	n := &recordingNarrator{gate: make(chan struct{})}
	d := NewDispatcher(n, DispatcherOptions{Timeout: time.Second})

	require.NoError(t, d.Submit(alert(crosswalk.StatusClear)))
	assert.True(t, d.Busy())
	assert.ErrorIs(t, d.Submit(alert(crosswalk.StatusMoving)), ErrBusy)

	close(n.gate)
	assert.Eventually(t, func() bool { return !d.Busy() }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, d.Submit(alert(crosswalk.StatusMoving)))

	closeDispatcher(t, d)
	st := d.Stats()
	assert.Equal(t, int64(2), st.Spoken)
	assert.Equal(t, int64(1), st.Rejected)
}

func TestDispatcher_HungNarratorTimesOut(t *testing.T) {
	t.Parallel()

	hang := make(chan struct{})
	defer close(hang)
	n := NarratorFunc(func(ctx context.Context, ev crosswalk.AlertEvent) error {
		<-hang // ignores ctx
		return nil
	})
	d := NewDispatcher(n, DispatcherOptions{Timeout: 50 * time.Millisecond})

	require.NoError(t, d.Submit(alert(crosswalk.StatusMoving)))
	assert.Eventually(t, func() bool { return !d.Busy() }, 2*time.Second, 5*time.Millisecond)

	failures := d.DrainFailures()
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Err, ErrTimeout)
	assert.Contains(t, failures[0].String(), "moving")
	assert.Equal(t, int64(1), d.Stats().TimedOut)
	assert.Empty(t, d.DrainFailures())

	closeDispatcher(t, d)
}

func TestDispatcher_NarratorError(t *testing.T) {
	t.Parallel()

	n := &recordingNarrator{err: errors.New("speaker unplugged")}
	d := NewDispatcher(n, DispatcherOptions{})

	require.NoError(t, d.Submit(alert(crosswalk.StatusStopped)))
	closeDispatcher(t, d)

	failures := d.DrainFailures()
	require.Len(t, failures, 1)
	assert.EqualError(t, failures[0].Err, "speaker unplugged")
	assert.Equal(t, int64(0), d.Stats().TimedOut)
}

func TestDispatcher_SubmitAfterClose(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(&recordingNarrator{}, DispatcherOptions{})
	closeDispatcher(t, d)
	closeDispatcher(t, d)
	assert.ErrorIs(t, d.Submit(alert(crosswalk.StatusClear)), ErrClosed)
}

func TestDispatcher_CloseBoundedByContext(t *testing.T) {
	t.Parallel()

	n := &recordingNarrator{gate: make(chan struct{})}
	d := NewDispatcher(n, DispatcherOptions{Timeout: time.Minute})
	require.NoError(t, d.Submit(alert(crosswalk.StatusClear)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	close(n.gate)
}
