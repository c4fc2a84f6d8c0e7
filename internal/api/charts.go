package api

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/db"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleSessionChart renders a session's timeline (displacement, vehicle
// count and alerts per frame) and its verdict breakdown as HTML.
func (s *Server) handleSessionChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/charts/sessions/"), "/")
	if id == "" || s.opts.History == nil {
		httputil.NotFound(w, "session not found")
		return
	}
	ctx := r.Context()
	if _, err := s.opts.History.GetSession(ctx, id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	frames, err := s.opts.History.FrameVerdicts(ctx, id, 0)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	alerts, err := s.opts.History.Alerts(ctx, id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	sum, err := s.opts.History.Summary(ctx, id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(timelineChart(id, frames, alerts, s.opts.Threshold), statusChart(sum))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func timelineChart(id string, frames []db.FrameRecord, alerts []db.AlertRecord, threshold float64) *charts.Line {
	alerted := make(map[int64]bool, len(alerts))
	for _, a := range alerts {
		alerted[a.FrameIndex] = true
	}

	x := make([]string, 0, len(frames))
	disp := make([]opts.LineData, 0, len(frames))
	count := make([]opts.LineData, 0, len(frames))
	safe := make([]opts.LineData, 0, len(frames))
	alertPts := make([]opts.LineData, 0, len(alerts))
	for _, f := range frames {
		x = append(x, strconv.FormatInt(f.FrameIndex, 10))
		disp = append(disp, opts.LineData{Value: f.MaxDisplacement})
		count = append(count, opts.LineData{Value: f.VehicleCount})
		v := 0
		if f.Safe {
			v = 1
		}
		safe = append(safe, opts.LineData{Value: v})
		if alerted[f.FrameIndex] {
			alertPts = append(alertPts, opts.LineData{Value: f.MaxDisplacement, Name: f.Status})
		} else {
			alertPts = append(alertPts, opts.LineData{Value: nil})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Crosswalk Timeline", Width: "100%", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Crosswalk Timeline", Subtitle: fmt.Sprintf("session=%s frames=%d alerts=%d threshold=%gpx", id, len(frames), len(alerts), threshold)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "px / count", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(x).
		AddSeries("max displacement", disp).
		AddSeries("vehicles", count).
		AddSeries("safe", safe).
		AddSeries("alert", alertPts)
	return line
}

func statusChart(sum db.SessionSummary) *charts.Bar {
	statuses := make([]string, 0, len(sum.ByStatus))
	for st := range sum.ByStatus {
		statuses = append(statuses, st)
	}
	sort.Strings(statuses)
	data := make([]opts.BarData, 0, len(statuses))
	for _, st := range statuses {
		data = append(data, opts.BarData{Value: sum.ByStatus[st]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Verdicts", Subtitle: fmt.Sprintf("safe=%d unsafe=%d alerts=%d", sum.Safe, sum.Unsafe, sum.Alerts)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(statuses).
		AddSeries("frames", data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
