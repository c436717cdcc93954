package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/skypro1111/rnnoise-service/internal/audio"
	"github.com/skypro1111/rnnoise-service/internal/config"
	"github.com/skypro1111/rnnoise-service/internal/denoise"
	"github.com/skypro1111/rnnoise-service/internal/metrics"
	"github.com/skypro1111/rnnoise-service/internal/stream"
	"github.com/skypro1111/rnnoise-service/internal/tracing"
	"github.com/skypro1111/rnnoise-service/internal/vad"
)

const (
	ServiceName    = "rnnoise-service"
	ServiceVersion = "1.0.0"

	outputFilename = "denoised.wav"
)

// Error kinds reported in the "error" field of JSON error responses
const (
	ErrKindMissingFile      = "missing_file"
	ErrKindInvalidParameter = "invalid_parameter"
	ErrKindTooLarge         = "payload_too_large"
	ErrKindFormat           = "unsupported_format"
	ErrKindPoolTimeout      = "pool_timeout"
	ErrKindUnavailable      = "unavailable"
	ErrKindIO               = "io_error"
	ErrKindInternal         = "internal_error"
)

// HTTPServer provides the denoise API and monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	pool     *stream.Pool
	adapter  *audio.Adapter
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server. gatherer backs /metrics and
// should be the registry m was registered on.
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, pool *stream.Pool,
	adapter *audio.Adapter, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:    logger.With(slog.String("component", "http")),
		config:    cfg,
		pool:      pool,
		adapter:   adapter,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.GetReadTimeout(),
		WriteTimeout: cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler, for embedding or tests
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// Addr returns the listen address
func (h *HTTPServer) Addr() string {
	return h.server.Addr
}

func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/denoise", h.withMetrics("/denoise", h.handleDenoise))

	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// no request metrics for the metrics endpoint itself
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Serve listens until Stop is called. It returns nil after a graceful stop.
func (h *HTTPServer) Serve() error {
	h.logger.Info("Starting HTTP API server", slog.String("address", h.server.Addr))

	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// errorResponse is the JSON body of every failed request
type errorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id"`
}

// classifyError maps a pipeline error to a status code and error kind
func classifyError(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, ErrKindTooLarge
	case errors.Is(err, vad.ErrThreshold):
		return http.StatusBadRequest, ErrKindInvalidParameter
	case errors.Is(err, audio.ErrFormat):
		return http.StatusUnsupportedMediaType, ErrKindFormat
	case errors.Is(err, stream.ErrPoolTimeout):
		return http.StatusServiceUnavailable, ErrKindPoolTimeout
	case errors.Is(err, stream.ErrPoolClosed), errors.Is(err, denoise.ErrState):
		return http.StatusServiceUnavailable, ErrKindUnavailable
	case errors.Is(err, audio.ErrIO):
		return http.StatusInternalServerError, ErrKindIO
	default:
		return http.StatusInternalServerError, ErrKindInternal
	}
}

func (h *HTTPServer) writeError(w http.ResponseWriter, status int, kind, requestID string, err error) {
	resp := errorResponse{
		Status:    "error",
		Error:     kind,
		RequestID: requestID,
	}
	if err != nil {
		resp.Message = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// parseFilterOptions reads the threshold and restore_rate query parameters,
// falling back to the configured defaults
func (h *HTTPServer) parseFilterOptions(r *http.Request) (denoise.FilterOptions, error) {
	opts := denoise.FilterOptions{
		Threshold:         h.config.Denoise.VoiceThreshold,
		RestoreSourceRate: h.config.Denoise.RestoreSourceRate,
	}

	query := r.URL.Query()
	if v := query.Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return opts, fmt.Errorf("%w: %q is not a number", vad.ErrThreshold, v)
		}
		opts.Threshold = float32(t)
	}
	if err := vad.ValidateThreshold(opts.Threshold); err != nil {
		return opts, err
	}

	if v := query.Get("restore_rate"); v != "" {
		restore, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("%w: restore_rate %q is not a boolean", errInvalidParameter, v)
		}
		opts.RestoreSourceRate = restore
	}

	return opts, nil
}

var errInvalidParameter = errors.New("invalid query parameter")

// handleDenoise implements POST /denoise
func (h *HTTPServer) handleDenoise(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, http.StatusMethodNotAllowed, ErrKindInvalidParameter, requestID,
			fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	ctx, span := tracing.StartSpan(r.Context(), "http.denoise", attribute.String("request_id", requestID))
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	logger := tracing.Logger(ctx, h.logger).With(slog.String("request_id", requestID))

	opts, err := h.parseFilterOptions(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrKindInvalidParameter, requestID, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.HTTP.GetMaxUploadBytes())
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			h.writeError(w, http.StatusRequestEntityTooLarge, ErrKindTooLarge, requestID, err)
			return
		}
		h.writeError(w, http.StatusBadRequest, ErrKindMissingFile, requestID,
			fmt.Errorf("multipart field \"file\" is required: %w", err))
		return
	}
	defer file.Close()

	if header.Filename == "" {
		err = errors.New("uploaded file has no filename")
		h.writeError(w, http.StatusBadRequest, ErrKindMissingFile, requestID, err)
		return
	}

	container := audio.ContainerFromFilename(header.Filename)
	span.SetAttributes(
		attribute.String("container", container),
		attribute.Int64("upload_bytes", header.Size),
	)

	out, inputSeconds, err := h.denoise(ctx, file, container, opts)
	if err != nil {
		status, kind := classifyError(err)
		h.metrics.RecordUpload(container, kind, 0)
		logger.Warn("Denoise request failed",
			slog.String("filename", header.Filename),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		h.writeError(w, status, kind, requestID, err)
		return
	}

	h.metrics.RecordUpload(container, "ok", inputSeconds)
	logger.Info("Denoise request completed",
		slog.String("filename", header.Filename),
		slog.Float64("input_seconds", inputSeconds),
		slog.Int("output_bytes", out.Len()),
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", outputFilename))
	w.Header().Set("Content-Length", strconv.Itoa(out.Len()))
	w.WriteHeader(http.StatusOK)
	out.WriteTo(w)
}

// denoise runs one upload through a leased session and returns the encoded
// WAV output and the input duration in seconds
func (h *HTTPServer) denoise(ctx context.Context, file io.Reader,
	container string, opts denoise.FilterOptions) (*bytes.Buffer, float64, error) {

	if !h.adapter.Supports(container) {
		return nil, 0, fmt.Errorf("%w: container %q is not supported", audio.ErrFormat, container)
	}

	lease, err := h.pool.Acquire(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer lease.Release()

	decodeCtx, decodeSpan := tracing.StartSpan(ctx, "audio.decode")
	in, err := h.adapter.Decode(decodeCtx, file, container)
	tracing.EndSpan(decodeSpan, err)
	if err != nil {
		return nil, 0, err
	}

	_, filterSpan := tracing.StartSpan(ctx, "denoise.filter",
		attribute.Int("sample_rate", in.SampleRate),
		attribute.Int("channels", in.Channels),
	)
	filtered, err := lease.Session.Filter(in, opts)
	tracing.EndSpan(filterSpan, err)
	if err != nil {
		return nil, 0, err
	}

	buf, ok := filtered.(audio.Buffer)
	if !ok {
		return nil, 0, fmt.Errorf("unexpected payload type %T", filtered)
	}

	encodeCtx, encodeSpan := tracing.StartSpan(ctx, "audio.encode")
	var out bytes.Buffer
	err = h.adapter.Denormalize(encodeCtx, &out, buf, 0, h.config.Denoise.OutputFormat)
	tracing.EndSpan(encodeSpan, err)
	if err != nil {
		return nil, 0, err
	}

	return &out, in.Duration().Seconds(), nil
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	poolStats := h.pool.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    ServiceName,
			"version": ServiceVersion,
		},
		"components": map[string]interface{}{
			"session_pool": map[string]interface{}{
				"status": "running",
				"size":   poolStats.Size,
				"in_use": poolStats.InUse,
				"idle":   poolStats.Idle,
			},
			"ffmpeg": map[string]interface{}{
				"enabled": h.config.FFmpeg.Enabled,
			},
		},
	}

	writeJSON(w, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// filesystem paths are left out
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"address":       h.config.HTTP.Address,
			"port":          h.config.HTTP.Port,
			"max_upload_mb": h.config.HTTP.MaxUploadMB,
			"read_timeout":  h.config.HTTP.ReadTimeout,
			"write_timeout": h.config.HTTP.WriteTimeout,
		},
		"engine": map[string]interface{}{
			"pool_size":       h.config.Engine.PoolSize,
			"acquire_timeout": h.config.Engine.AcquireTimeout,
			"idle_timeout":    h.config.Engine.IdleTimeout,
		},
		"denoise": map[string]interface{}{
			"voice_threshold":     h.config.Denoise.VoiceThreshold,
			"restore_source_rate": h.config.Denoise.RestoreSourceRate,
			"output_format":       h.config.Denoise.OutputFormat,
		},
		"ffmpeg": map[string]interface{}{
			"enabled": h.config.FFmpeg.Enabled,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
		},
	}

	writeJSON(w, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"pool":      h.pool.GetStats(),
	}

	writeJSON(w, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "RNNoise Denoise Service",
		"version": ServiceVersion,
		"endpoints": map[string]interface{}{
			"GET /":         "API documentation",
			"POST /denoise": "Denoise an uploaded file (multipart field \"file\"; query: threshold, restore_rate)",
			"GET /health":   "Service health check",
			"GET /config":   "Get service configuration",
			"GET /stats":    "Get session pool statistics",
			"GET /metrics":  "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, apiDoc)
}
