package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
)

func TestReadFrames(t *testing.T) {
	input := `# recorded at the Main St crossing
{"detections":[{"label":"pedestrian crossing","confidence":0.9,"xmin":250,"ymin":300,"xmax":390,"ymax":380}]}

{"index":7,"detections":[]}
{"detections":[{"label":"car","confidence":0.8,"xmin":10,"ymin":10,"xmax":60,"ymax":40}]}
`
	var got []crosswalk.Frame
	err := readFrames(strings.NewReader(input), func(f crosswalk.Frame) error {
		got = append(got, f)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []int64{0, 7, 8}, []int64{got[0].Index, got[1].Index, got[2].Index})
	require.Len(t, got[0].Detections, 1)
	assert.Equal(t, "pedestrian crossing", got[0].Detections[0].Label)
	assert.Equal(t, 390.0, got[0].Detections[0].XMax)
	assert.Empty(t, got[1].Detections)
}

func TestReadFrames_Errors(t *testing.T) {
	err := readFrames(strings.NewReader("{}\n{not json\n"), func(crosswalk.Frame) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	stop := errors.New("stop")
	err = readFrames(strings.NewReader("{}\n{}\n"), func(crosswalk.Frame) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Contains(t, err.Error(), "line 1")
}

func TestFrameClock(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fc := newFrameClock(start, 4)

	f, gap := fc.Stamp(crosswalk.Frame{})
	assert.Equal(t, start, f.Timestamp)
	assert.Equal(t, 250*time.Millisecond, gap)

	f, _ = fc.Stamp(crosswalk.Frame{})
	assert.Equal(t, start.Add(250*time.Millisecond), f.Timestamp)

	recorded := start.Add(2 * time.Second)
	f, gap = fc.Stamp(crosswalk.Frame{Timestamp: recorded})
	assert.Equal(t, recorded, f.Timestamp)
	assert.Equal(t, 1750*time.Millisecond, gap)

	// Out of order timestamps never yield a negative gap.
	_, gap = fc.Stamp(crosswalk.Frame{Timestamp: start})
	assert.Zero(t, gap)
}

func TestFrameClock_DefaultRate(t *testing.T) {
	fc := newFrameClock(time.Unix(0, 0), 0)
	assert.Equal(t, 100*time.Millisecond, fc.interval)
}
