package api

import (
	"dashplayer/internal/logger"
	"dashplayer/internal/metrics"
	"dashplayer/internal/session"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

const streamBufferSize = 32 * 1024

// API serves the playback stream and reporting endpoints of one session.
type API struct {
	session   *session.Session
	metrics   *metrics.Metrics
	logger    logger.Logger
	streaming atomic.Bool
}

// New returns the HTTP surface of a session. m may be nil, in which case
// /metrics is not served.
func New(sess *session.Session, m *metrics.Metrics, log logger.Logger) http.Handler {
	api := &API{
		session: sess,
		metrics: m,
		logger:  log,
	}

	r := chi.NewRouter()
	r.Use(requestLogger(log))
	if m != nil {
		r.Use(metrics.RequestMiddleware(m))
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			m.Handler(sess.RefreshMetrics).ServeHTTP(w, r)
		})
	}
	r.Get("/stream", api.handleStream)
	r.Get("/status", api.handleStatus)

	return r
}

// statusResponse is the JSON body of /status.
type statusResponse struct {
	ManifestURL       string  `json:"manifest_url"`
	State             string  `json:"state"`
	PlaybackStarted   bool    `json:"playback_started"`
	Representation    string  `json:"representation"`
	Bandwidth         int64   `json:"bandwidth"`
	BufferLevel       float64 `json:"buffer_level"`
	Throughput        float64 `json:"throughput"`
	PendingActions    int     `json:"pending_actions"`
	CompletedRequests int     `json:"completed_requests"`
	ContourLength     int     `json:"contour_length"`
	Deferred          bool    `json:"deferred"`
	DelayUntil        float64 `json:"delay_until,omitempty"`
	PlaybackIndex     int64   `json:"playback_index"`
	PlayedSeconds     float64 `json:"played_seconds"`
	PlayedBytes       int64   `json:"played_bytes"`
	SegmentsStored    int     `json:"segments_stored"`
	BytesStored       int64   `json:"bytes_stored"`
	Error             string  `json:"error,omitempty"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := a.session.Status()
	resp := statusResponse{
		ManifestURL:       st.ManifestURL,
		State:             st.State.String(),
		PlaybackStarted:   st.PlaybackStarted,
		Representation:    st.Representation,
		Bandwidth:         st.Bandwidth,
		BufferLevel:       st.BufferLevel,
		Throughput:        st.Rho,
		PendingActions:    st.PendingActions,
		CompletedRequests: st.CompletedRequests,
		ContourLength:     st.ContourLength,
		Deferred:          st.Deferred,
		PlaybackIndex:     st.PlaybackIndex,
		PlayedSeconds:     float64(st.PlayedUsec) / 1e6,
		PlayedBytes:       st.PlayedBytes,
		SegmentsStored:    st.SegmentsStored,
		BytesStored:       st.BytesStored,
		Error:             st.Error,
	}
	if st.Deferred {
		resp.DelayUntil = st.DelayUntil
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.logger.Warnf("Failed to encode status: %v", err)
	}
}

// handleStream plays the session to the client. Only one client may play at a time.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	if !a.streaming.CompareAndSwap(false, true) {
		http.Error(w, "stream already being played", http.StatusConflict)
		return
	}
	defer a.streaming.Store(false)

	reader := a.session.NewReader(r.Context())
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, streamBufferSize)

	w.Header().Set("Content-Type", "video/mp4")
	var written int64
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				a.logger.Debugf("Stream client went away after %d bytes: %v", written, werr)
				return
			}
			written += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(err, io.EOF) {
			a.logger.Infof("Stream complete, %d bytes sent", written)
			return
		}
		if err != nil {
			if written == 0 && r.Context().Err() == nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			a.logger.Warnf("Stream ended after %d bytes: %v", written, err)
			return
		}
	}
}

// statusRecorder captures the status code and size for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// requestLogger logs each request with method, path, status, duration and size.
func requestLogger(log logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrap := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrap, r)
			log.Debugf("%s %s -> %d (%d bytes, %s)", r.Method, r.URL.Path, wrap.status, wrap.size, time.Since(start))
		})
	}
}
