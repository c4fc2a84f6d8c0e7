package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
)

// maxFrameLine bounds one JSONL record. Crowded scenes run to a few hundred
// detections.
const maxFrameLine = 4 << 20

// readFrames decodes one crosswalk.Frame per line and calls fn for each.
// Blank lines and lines starting with # are skipped. A frame without an
// index takes its line order.
func readFrames(r io.Reader, fn func(crosswalk.Frame) error) error {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), maxFrameLine)

	line := 0
	var next int64
	for scan.Scan() {
		line++
		b := bytes.TrimSpace(scan.Bytes())
		if len(b) == 0 || b[0] == '#' {
			continue
		}
		var f crosswalk.Frame
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if f.Index == 0 {
			f.Index = next
		}
		next = f.Index + 1
		if err := fn(f); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return scan.Err()
}

// frameClock assigns replay timestamps. Frames carrying a timestamp keep
// it; the rest are spaced 1/fps after the previous frame.
type frameClock struct {
	interval time.Duration
	last     time.Time
}

func newFrameClock(start time.Time, fps float64) *frameClock {
	if fps <= 0 {
		fps = 10
	}
	interval := time.Duration(float64(time.Second) / fps)
	return &frameClock{interval: interval, last: start.Add(-interval)}
}

// Stamp returns f with a timestamp and the gap since the previous frame.
func (c *frameClock) Stamp(f crosswalk.Frame) (crosswalk.Frame, time.Duration) {
	if f.Timestamp.IsZero() {
		f.Timestamp = c.last.Add(c.interval)
	}
	gap := f.Timestamp.Sub(c.last)
	if gap < 0 {
		gap = 0
	}
	c.last = f.Timestamp
	return f, gap
}
