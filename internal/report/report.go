// Package report renders a session's verdict history as a PNG timeline.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/db"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/security"
)

// ErrNoFrames is returned when there is nothing to plot.
var ErrNoFrames = errors.New("session has no recorded frames")

var (
	colorSafe   = color.RGBA{R: 0x2e, G: 0x9e, B: 0x44, A: 0xff}
	colorUnsafe = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	colorLine   = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	colorAlert  = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
)

// Options control the rendered timeline.
type Options struct {
	Title string
	// Threshold draws the movement threshold as a dashed line when positive.
	Threshold float64
	Width     vg.Length
	Height    vg.Length
}

func (o Options) size() (vg.Length, vg.Length) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = 14 * vg.Inch
	}
	if h <= 0 {
		h = 6 * vg.Inch
	}
	return w, h
}

// Stats summarizes a session's frames.
type Stats struct {
	Frames           int     `json:"frames"`
	SafeFraction     float64 `json:"safe_fraction"`
	MeanDisplacement float64 `json:"mean_displacement"`
	P95Displacement  float64 `json:"p95_displacement"`
	MaxVehicles      int     `json:"max_vehicles"`
}

// Summarize computes Stats over frames.
func Summarize(frames []db.FrameRecord) Stats {
	s := Stats{Frames: len(frames)}
	if len(frames) == 0 {
		return s
	}
	disp := make([]float64, len(frames))
	safe := 0
	for i, f := range frames {
		disp[i] = f.MaxDisplacement
		if f.Safe {
			safe++
		}
		if f.VehicleCount > s.MaxVehicles {
			s.MaxVehicles = f.VehicleCount
		}
	}
	sort.Float64s(disp)
	s.SafeFraction = float64(safe) / float64(len(frames))
	s.MeanDisplacement = stat.Mean(disp, nil)
	s.P95Displacement = stat.Quantile(0.95, stat.Empirical, disp, nil)
	return s
}

// Timeline builds the plot: the largest vehicle displacement per frame, the
// verdict of each frame as a coloured marker on the x axis, and the frames
// that raised an alert.
func Timeline(frames []db.FrameRecord, alerts []db.AlertRecord, opts Options) (*plot.Plot, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}

	p := plot.New()
	p.Title.Text = opts.Title
	if p.Title.Text == "" {
		p.Title.Text = fmt.Sprintf("Crosswalk session %s", frames[0].SessionID)
	}
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Max displacement (px)"

	disp := make(plotter.XYs, 0, len(frames))
	safePts := make(plotter.XYs, 0, len(frames))
	unsafePts := make(plotter.XYs, 0, len(frames))
	byIndex := make(map[int64]float64, len(frames))
	for _, f := range frames {
		x := float64(f.FrameIndex)
		disp = append(disp, plotter.XY{X: x, Y: f.MaxDisplacement})
		byIndex[f.FrameIndex] = f.MaxDisplacement
		if f.Safe {
			safePts = append(safePts, plotter.XY{X: x, Y: 0})
		} else {
			unsafePts = append(unsafePts, plotter.XY{X: x, Y: 0})
		}
	}

	line, err := plotter.NewLine(disp)
	if err != nil {
		return nil, err
	}
	line.Color = colorLine
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("displacement", line)

	if opts.Threshold > 0 {
		th := plotter.NewFunction(func(float64) float64 { return opts.Threshold })
		th.Color = color.Gray{Y: 0x80}
		th.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(th)
		p.Legend.Add("threshold", th)
	}

	for _, series := range []struct {
		name string
		pts  plotter.XYs
		c    color.Color
	}{
		{"safe", safePts, colorSafe},
		{"unsafe", unsafePts, colorUnsafe},
	} {
		if len(series.pts) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(series.pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = series.c
		sc.GlyphStyle.Shape = draw.BoxGlyph{}
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add(series.name, sc)
	}

	if len(alerts) > 0 {
		pts := make(plotter.XYs, 0, len(alerts))
		for _, a := range alerts {
			pts = append(pts, plotter.XY{X: float64(a.FrameIndex), Y: byIndex[a.FrameIndex]})
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = colorAlert
		sc.GlyphStyle.Shape = draw.TriangleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add("alert", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	p.Add(plotter.NewGrid())
	return p, nil
}

// WritePNG renders the timeline to w.
func WritePNG(w io.Writer, frames []db.FrameRecord, alerts []db.AlertRecord, opts Options) error {
	p, err := Timeline(frames, alerts, opts)
	if err != nil {
		return err
	}
	width, height := opts.size()
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("render timeline: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG renders the timeline to path, which must be under the working or
// temp directory.
func SavePNG(path string, frames []db.FrameRecord, alerts []db.AlertRecord, opts Options) error {
	if filepath.Ext(path) != ".png" {
		return fmt.Errorf("report path %s must have a .png extension", path)
	}
	if err := security.ValidateOutputPath(path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePNG(f, frames, alerts, opts); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// DefaultFilename is the report name for a session.
func DefaultFilename(sessionID string) string {
	return fmt.Sprintf("crosswalk_%s.png", security.SanitizeFilename(sessionID))
}
