package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/rep.coach/internal/httputil"
)

// Monitor serves debug visualisations of a Trace.
type Monitor struct {
	trace *Trace
}

// NewMonitor wraps a trace for HTTP serving.
func NewMonitor(trace *Trace) *Monitor {
	return &Monitor{trace: trace}
}

// AttachRoutes registers the debug endpoints on mux.
func (m *Monitor) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/trace/depth", m.handleDepthChart)
	mux.HandleFunc("/debug/trace/angles", m.handleAnglesChart)
	mux.HandleFunc("/debug/trace/plot.png", m.handleTracePNG)
	mux.HandleFunc("/debug/trace/data", m.handleTraceData)
}

// maxPointsParam bounds the rendered point count to keep payloads small.
func maxPointsParam(r *http.Request, def int) int {
	maxPoints := def
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}
	return maxPoints
}

// downsample returns every stride-th sample so len(result) <= maxPoints.
func downsample(samples []Sample, maxPoints int) []Sample {
	if len(samples) <= maxPoints {
		return samples
	}
	stride := (len(samples) + maxPoints - 1) / maxPoints
	out := make([]Sample, 0, maxPoints)
	for i := 0; i < len(samples); i += stride {
		out = append(out, samples[i])
	}
	return out
}

// handleDepthChart renders a line chart of the depth fraction over time with
// the repetition count overlaid. Debugging-only endpoint.
func (m *Monitor) handleDepthChart(w http.ResponseWriter, r *http.Request) {
	samples := downsample(m.trace.Snapshot(), maxPointsParam(r, 8000))
	if len(samples) == 0 {
		httputil.NotFound(w, "no trace samples recorded")
		return
	}

	x := make([]string, 0, len(samples))
	depth := make([]opts.LineData, 0, len(samples))
	reps := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		x = append(x, fmt.Sprintf("%.2f", s.Timestamp))
		depth = append(depth, opts.LineData{Value: s.Depth})
		reps = append(reps, opts.LineData{Value: s.RepCount})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Depth Trace", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Depth Fraction", Subtitle: fmt.Sprintf("samples=%d", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "depth / reps"}),
	)
	line.SetXAxis(x).
		AddSeries("depth", depth).
		AddSeries("reps", reps)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleAnglesChart renders knee and trunk angles over time.
func (m *Monitor) handleAnglesChart(w http.ResponseWriter, r *http.Request) {
	samples := downsample(m.trace.Snapshot(), maxPointsParam(r, 8000))
	if len(samples) == 0 {
		httputil.NotFound(w, "no trace samples recorded")
		return
	}

	x := make([]string, 0, len(samples))
	knee := make([]opts.LineData, 0, len(samples))
	trunk := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		x = append(x, fmt.Sprintf("%.2f", s.Timestamp))
		knee = append(knee, opts.LineData{Value: s.KneeAngleDeg})
		trunk = append(trunk, opts.LineData{Value: s.TrunkAngleDeg})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Angle Trace", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Knee and Trunk Angles", Subtitle: fmt.Sprintf("samples=%d", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "degrees"}),
	)
	line.SetXAxis(x).
		AddSeries("knee", knee).
		AddSeries("trunk", trunk)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleTraceData serves the raw trace samples as JSON for external tooling.
func (m *Monitor) handleTraceData(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, m.trace.Snapshot())
}
