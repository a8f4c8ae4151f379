package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordHTTPRequest("GET", "/video/{id}", 200, 5*time.Millisecond)
	m.RecordVideoPage("renderable", true)
	m.RecordVideoPage("blocked", false)
	m.RecordLogin("banned")
	m.RecordModeration("ban")
	m.RecordBanCascade(2, 1)
	m.RecordGCRun(0.5, 3, 300, 3)

	require.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/video/{id}", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.VideoViewsTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(m.VideoPagesTotal.WithLabelValues("blocked")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.LoginsTotal.WithLabelValues("banned")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.CascadeVideosDeleted))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CascadeFileFailures))
	require.Equal(t, 3.0, testutil.ToFloat64(m.GCFilesDeleted))
	require.Equal(t, 300.0, testutil.ToFloat64(m.GCBytesFreed))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
		m.RecordRegistration()
		m.RecordUpload(10)
		m.RecordComment()
		m.RecordGCRun(1, 1, 1, 1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordUpload(1024)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "pixtube_uploads_total 1")
	require.Contains(t, string(body), "pixtube_upload_bytes_total 1024")
}
