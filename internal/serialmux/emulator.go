package serialmux

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"time"
)

// SpeechEmulator is an in-memory SerialPorter that behaves like the speech
// module: it consumes newline-terminated commands, records spoken phrases and
// answers every command with Prompt. It backs tests and the "emulator" port
// path for running without hardware.
type SpeechEmulator struct {
	mu       sync.Mutex
	cond     *sync.Cond
	out      bytes.Buffer
	pending  []byte
	commands []string
	spoken   []string
	closed   bool

	// SpeakDelay delays the prompt after an S command, standing in for the
	// time it takes to say the phrase.
	SpeakDelay time.Duration
	// Hang suppresses the prompt after S commands, like a module that has
	// locked up mid-sentence.
	Hang bool
	// WriteError, when set, is returned by every Write.
	WriteError error
}

// NewSpeechEmulator returns an emulator that has just powered up and printed
// its first prompt.
func NewSpeechEmulator() *SpeechEmulator {
	e := &SpeechEmulator{}
	e.cond = sync.NewCond(&e.mu)
	e.out.WriteString(Prompt)
	return e
}

// Read blocks until the module has output or the port is closed.
func (e *SpeechEmulator) Read(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.out.Len() == 0 && !e.closed {
		e.cond.Wait()
	}
	if e.out.Len() == 0 {
		return 0, io.EOF
	}
	return e.out.Read(p)
}

// Write accepts command bytes, which may split or join commands.
func (e *SpeechEmulator) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, io.ErrClosedPipe
	}
	if e.WriteError != nil {
		return 0, e.WriteError
	}

	e.pending = append(e.pending, p...)
	for {
		i := bytes.IndexAny(e.pending, "\r\n")
		if i < 0 {
			break
		}
		cmd := strings.TrimSpace(string(e.pending[:i]))
		e.pending = e.pending[i+1:]
		if cmd != "" {
			e.handle(cmd)
		}
	}
	return len(p), nil
}

// handle runs with e.mu held.
func (e *SpeechEmulator) handle(cmd string) {
	e.commands = append(e.commands, cmd)
	if cmd[0] != 'S' {
		e.prompt()
		return
	}

	e.spoken = append(e.spoken, cmd[1:])
	switch {
	case e.Hang:
	case e.SpeakDelay > 0:
		time.AfterFunc(e.SpeakDelay, func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.prompt()
		})
	default:
		e.prompt()
	}
}

func (e *SpeechEmulator) prompt() {
	if e.closed {
		return
	}
	e.out.WriteString(Prompt)
	e.cond.Broadcast()
}

// Close unblocks readers with io.EOF.
func (e *SpeechEmulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.cond.Broadcast()
	return nil
}

// Commands returns every command received, without terminators.
func (e *SpeechEmulator) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}

// Spoken returns the phrases received through S commands.
func (e *SpeechEmulator) Spoken() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.spoken...)
}

// SetHang toggles Hang while the emulator is in use.
func (e *SpeechEmulator) SetHang(hang bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Hang = hang
}

// SetSpeakDelay changes SpeakDelay while the emulator is in use.
func (e *SpeechEmulator) SetSpeakDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SpeakDelay = d
}
