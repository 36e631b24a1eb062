package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rep.coach/internal/session"
)

func monitorMux(tr *Trace) *http.ServeMux {
	mux := http.NewServeMux()
	NewMonitor(tr).AttachRoutes(mux)
	return mux
}

func TestChartsRenderHTML(t *testing.T) {
	t.Parallel()

	tr := NewTrace(100)
	record(tr, 50)
	mux := monitorMux(tr)

	for _, path := range []string{"/debug/trace/depth", "/debug/trace/angles"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html", path)
		assert.Contains(t, rec.Body.String(), "echarts", path)
	}
}

func TestChartsWithEmptyTrace(t *testing.T) {
	t.Parallel()

	mux := monitorMux(NewTrace(100))
	for _, path := range []string{"/debug/trace/depth", "/debug/trace/angles", "/debug/trace/plot.png"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestTraceDataJSON(t *testing.T) {
	t.Parallel()

	tr := NewTrace(100)
	tr.Record(session.Snapshot{DepthFraction: 0.5, RepCount: 2, FSMState: "bottom"}, 1.5)
	mux := monitorMux(tr)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/trace/data", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var samples []Sample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &samples))
	require.Len(t, samples, 1)
	assert.Equal(t, 0.5, samples[0].Depth)
	assert.Equal(t, "bottom", samples[0].State)
}

func TestTracePNG(t *testing.T) {
	t.Parallel()

	tr := NewTrace(100)
	record(tr, 30)
	mux := monitorMux(tr)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/trace/plot.png?kind=depth", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	// PNG magic bytes.
	require.GreaterOrEqual(t, rec.Body.Len(), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, rec.Body.Bytes()[:4])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/trace/plot.png?kind=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGeneratePlots(t *testing.T) {
	t.Parallel()

	tr := NewTrace(100)
	record(tr, 30)

	dir := t.TempDir()
	require.NoError(t, NewMonitor(tr).GeneratePlots(dir))

	for _, name := range []string{"depth.png", "angles.png"} {
		assert.FileExists(t, dir+"/"+name)
	}
}
