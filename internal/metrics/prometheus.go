package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/skypro1111/rnnoise-service/internal/stream"
)

// Metrics contains all Prometheus metrics for the denoise service
type Metrics struct {
	// Frame metrics
	FramesProcessed prometheus.Counter
	FrameDuration   prometheus.Histogram
	VoiceScore      prometheus.Histogram

	// Filter metrics
	FilterCalls    prometheus.Counter
	FilterDuration prometheus.Histogram
	FramesKept     prometheus.Counter
	FramesDropped  prometheus.Counter
	SessionResets  prometheus.Counter

	// Pool metrics
	SessionsInUse   prometheus.Gauge
	SessionsIdle    prometheus.Gauge
	AcquireDuration prometheus.Histogram
	AcquireTimeouts prometheus.Counter

	// Upload metrics
	Uploads       *prometheus.CounterVec
	AudioDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Frame metrics
		FramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "rnnoise_frames_processed_total",
			Help: "Total number of 10 ms frames run through the denoiser",
		}),
		FrameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rnnoise_frame_processing_duration_seconds",
			Help:    "Time spent denoising a single frame",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 12), // 10µs to ~20ms
		}),
		VoiceScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rnnoise_voice_score",
			Help:    "Voice activity score reported per frame",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),

		// Filter metrics
		FilterCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "rnnoise_filter_calls_total",
			Help: "Total number of payloads filtered",
		}),
		FilterDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rnnoise_filter_duration_seconds",
			Help:    "Time spent filtering a whole payload",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		}),
		FramesKept: factory.NewCounter(prometheus.CounterOpts{
			Name: "rnnoise_frames_kept_total",
			Help: "Total number of frames kept by the voice gate",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "rnnoise_frames_dropped_total",
			Help: "Total number of frames dropped by the voice gate",
		}),
		SessionResets: factory.NewCounter(prometheus.CounterOpts{
			Name: "rnnoise_session_resets_total",
			Help: "Total number of denoiser state resets",
		}),

		// Pool metrics
		SessionsInUse: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rnnoise_sessions_in_use",
			Help: "Current number of leased denoiser sessions",
		}),
		SessionsIdle: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rnnoise_sessions_idle",
			Help: "Current number of idle denoiser sessions",
		}),
		AcquireDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rnnoise_session_acquire_duration_seconds",
			Help:    "Time spent waiting for a denoiser session",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
		}),
		AcquireTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "rnnoise_session_acquire_timeouts_total",
			Help: "Total number of requests that found no free session in time",
		}),

		// Upload metrics
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rnnoise_uploads_total",
			Help: "Total number of uploaded files by container and outcome",
		}, []string{"container", "result"}),
		AudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rnnoise_audio_duration_seconds",
			Help:    "Duration of uploaded audio",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17 minutes
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rnnoise_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rnnoise_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rnnoise_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrame records one denoised frame
func (m *Metrics) RecordFrame(score float32, elapsed time.Duration) {
	m.FramesProcessed.Inc()
	m.FrameDuration.Observe(elapsed.Seconds())
	m.VoiceScore.Observe(float64(score))
}

// RecordFilter records one filtered payload and the gate's decision
func (m *Metrics) RecordFilter(kept, dropped int, elapsed time.Duration) {
	m.FilterCalls.Inc()
	m.FilterDuration.Observe(elapsed.Seconds())
	m.FramesKept.Add(float64(kept))
	m.FramesDropped.Add(float64(dropped))
}

// RecordReset increments the session resets counter
func (m *Metrics) RecordReset() {
	m.SessionResets.Inc()
}

// ObserveAcquire records how long a session acquire waited
func (m *Metrics) ObserveAcquire(wait time.Duration, err error) {
	m.AcquireDuration.Observe(wait.Seconds())
	if errors.Is(err, stream.ErrPoolTimeout) {
		m.AcquireTimeouts.Inc()
	}
}

// SetSessions sets the pool occupancy gauges
func (m *Metrics) SetSessions(inUse, idle int) {
	m.SessionsInUse.Set(float64(inUse))
	m.SessionsIdle.Set(float64(idle))
}

// RecordUpload records the outcome of one uploaded file
func (m *Metrics) RecordUpload(container, result string, audioSeconds float64) {
	m.Uploads.WithLabelValues(container, result).Inc()
	if audioSeconds > 0 {
		m.AudioDuration.Observe(audioSeconds)
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
