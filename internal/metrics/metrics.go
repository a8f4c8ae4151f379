// Package metrics exposes Prometheus metrics for PixTube.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pixtube"

// Metrics holds every collector the server records into.
// All Record* methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Accounts
	RegistrationsTotal prometheus.Counter
	LoginsTotal        *prometheus.CounterVec

	// Content
	UploadsTotal      prometheus.Counter
	UploadBytesTotal  prometheus.Counter
	VideoViewsTotal   prometheus.Counter
	VideoPagesTotal   *prometheus.CounterVec
	CommentsTotal     prometheus.Counter
	ModerationActions *prometheus.CounterVec

	// Ban cascade
	CascadeVideosDeleted prometheus.Counter
	CascadeFileFailures  prometheus.Counter

	// Content sweeper
	GCRunsTotal     prometheus.Counter
	GCFilesDeleted  prometheus.Counter
	GCBytesFreed    prometheus.Counter
	GCRunDuration   prometheus.Histogram
	GCLastRunTime   prometheus.Gauge
	GCOrphanFiles   prometheus.Gauge
}

// New creates and registers every collector on a fresh registry,
// together with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		RegistrationsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Accounts registered.",
		}),
		LoginsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),

		UploadsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Videos uploaded.",
		}),
		UploadBytesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes of video content stored.",
		}),
		VideoViewsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_views_total",
			Help:      "Counted video page views.",
		}),
		VideoPagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_pages_total",
			Help:      "Video page requests by moderation decision.",
		}, []string{"state"}),
		CommentsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_total",
			Help:      "Comments posted.",
		}),
		ModerationActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_actions_total",
			Help:      "Administrative actions by kind.",
		}, []string{"action"}),

		CascadeVideosDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ban",
			Name:      "videos_deleted_total",
			Help:      "Videos removed because their owner was banned.",
		}),
		CascadeFileFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ban",
			Name:      "file_cleanup_failures_total",
			Help:      "Stored files that could not be removed after a ban.",
		}),

		GCRunsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "runs_total",
			Help:      "Content sweeper runs.",
		}),
		GCFilesDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "files_deleted_total",
			Help:      "Orphan files removed by the sweeper.",
		}),
		GCBytesFreed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "bytes_freed_total",
			Help:      "Bytes freed by the sweeper.",
		}),
		GCRunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "run_duration_seconds",
			Help:      "Content sweeper run time.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		GCLastRunTime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed sweeper run.",
		}),
		GCOrphanFiles: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "orphan_files",
			Help:      "Orphan files found in the last run.",
		}),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordRegistration counts a new account.
func (m *Metrics) RecordRegistration() {
	if m == nil {
		return
	}
	m.RegistrationsTotal.Inc()
}

// RecordLogin counts a login attempt. result is "success", "invalid" or "banned".
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// RecordUpload counts a stored video.
func (m *Metrics) RecordUpload(size int64) {
	if m == nil {
		return
	}
	m.UploadsTotal.Inc()
	m.UploadBytesTotal.Add(float64(size))
}

// RecordVideoPage counts a video page decision and, for renderable pages, a view.
func (m *Metrics) RecordVideoPage(state string, counted bool) {
	if m == nil {
		return
	}
	m.VideoPagesTotal.WithLabelValues(state).Inc()
	if counted {
		m.VideoViewsTotal.Inc()
	}
}

// RecordComment counts a posted comment.
func (m *Metrics) RecordComment() {
	if m == nil {
		return
	}
	m.CommentsTotal.Inc()
}

// RecordModeration counts an administrative action.
func (m *Metrics) RecordModeration(action string) {
	if m == nil {
		return
	}
	m.ModerationActions.WithLabelValues(action).Inc()
}

// RecordBanCascade records the outcome of a ban cascade.
func (m *Metrics) RecordBanCascade(videosDeleted, fileFailures int) {
	if m == nil {
		return
	}
	m.CascadeVideosDeleted.Add(float64(videosDeleted))
	m.CascadeFileFailures.Add(float64(fileFailures))
}

// RecordGCRun records a completed sweeper run.
func (m *Metrics) RecordGCRun(durationSeconds float64, filesDeleted int, bytesFreed int64, orphans int) {
	if m == nil {
		return
	}
	m.GCRunsTotal.Inc()
	m.GCRunDuration.Observe(durationSeconds)
	m.GCFilesDeleted.Add(float64(filesDeleted))
	m.GCBytesFreed.Add(float64(bytesFreed))
	m.GCOrphanFiles.Set(float64(orphans))
	m.GCLastRunTime.SetToCurrentTime()
}
