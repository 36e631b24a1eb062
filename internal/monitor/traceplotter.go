package monitor

import (
	"fmt"
	"image/color"
	"net/http"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/rep.coach/internal/httputil"
)

var (
	depthColor = color.RGBA{R: 31, G: 158, B: 137, A: 255}
	kneeColor  = color.RGBA{R: 68, G: 1, B: 84, A: 255}
	trunkColor = color.RGBA{R: 253, G: 231, B: 37, A: 255}
)

// buildDepthPlot assembles a depth-over-time line plot from the samples.
func buildDepthPlot(samples []Sample) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Depth Fraction"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Depth"

	pts := make(plotter.XYs, 0, len(samples))
	for _, s := range samples {
		pts = append(pts, plotter.XY{X: s.Timestamp, Y: s.Depth})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = depthColor
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("depth", line)
	return p, nil
}

// buildAnglePlot assembles a knee/trunk angle plot from the samples.
func buildAnglePlot(samples []Sample) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Knee and Trunk Angles"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Degrees"

	kneePts := make(plotter.XYs, 0, len(samples))
	trunkPts := make(plotter.XYs, 0, len(samples))
	for _, s := range samples {
		kneePts = append(kneePts, plotter.XY{X: s.Timestamp, Y: s.KneeAngleDeg})
		trunkPts = append(trunkPts, plotter.XY{X: s.Timestamp, Y: s.TrunkAngleDeg})
	}

	kneeLine, err := plotter.NewLine(kneePts)
	if err != nil {
		return nil, err
	}
	kneeLine.Color = kneeColor
	kneeLine.Width = vg.Points(1)
	p.Add(kneeLine)
	p.Legend.Add("knee", kneeLine)

	trunkLine, err := plotter.NewLine(trunkPts)
	if err != nil {
		return nil, err
	}
	trunkLine.Color = trunkColor
	trunkLine.Width = vg.Points(1)
	p.Add(trunkLine)
	p.Legend.Add("trunk", trunkLine)
	return p, nil
}

// handleTracePNG renders the depth trace as a PNG. The kind query param
// selects "depth" (default) or "angles".
func (m *Monitor) handleTracePNG(w http.ResponseWriter, r *http.Request) {
	samples := m.trace.Snapshot()
	if len(samples) == 0 {
		httputil.NotFound(w, "no trace samples recorded")
		return
	}

	var (
		p   *plot.Plot
		err error
	)
	switch r.URL.Query().Get("kind") {
	case "", "depth":
		p, err = buildDepthPlot(samples)
	case "angles":
		p, err = buildAnglePlot(samples)
	default:
		httputil.WriteJSONError(w, http.StatusBadRequest, "unknown kind; want depth or angles")
		return
	}
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build plot: %v", err))
		return
	}

	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		// Headers already sent; nothing sensible to do but log via the
		// request logger upstream.
		return
	}
}

// GeneratePlots writes depth and angle PNGs for the recorded trace into
// outputDir. Used by the report tool after a replay run.
func (m *Monitor) GeneratePlots(outputDir string) error {
	samples := m.trace.Snapshot()
	if len(samples) == 0 {
		return fmt.Errorf("no trace samples recorded")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	depthPlot, err := buildDepthPlot(samples)
	if err != nil {
		return err
	}
	if err := depthPlot.Save(10*vg.Inch, 5*vg.Inch, filepath.Join(outputDir, "depth.png")); err != nil {
		return fmt.Errorf("failed to save depth plot: %w", err)
	}

	anglePlot, err := buildAnglePlot(samples)
	if err != nil {
		return err
	}
	if err := anglePlot.Save(10*vg.Inch, 5*vg.Inch, filepath.Join(outputDir, "angles.png")); err != nil {
		return fmt.Errorf("failed to save angle plot: %w", err)
	}
	return nil
}
