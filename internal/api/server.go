// Package api implements the HTTP surface: GET /sync, POST /sync, GET
// /sync/v2, and GET /health. It uses the standard library's net/http with
// Go 1.22+ method-and-path ServeMux patterns — no router library is wired
// in, since the surface is exactly three routes plus health (see
// DESIGN.md).
package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fieldsync/syncd/internal/clock"
	"github.com/fieldsync/syncd/internal/ingest"
	"github.com/fieldsync/syncd/internal/logging"
	"github.com/fieldsync/syncd/internal/projection"
	"github.com/fieldsync/syncd/internal/replay"
	"github.com/fieldsync/syncd/internal/store"
)

// Server wires the sync protocol's components into an http.Handler.
type Server struct {
	store      *store.Store
	projection *projection.Reader
	ingestor   *ingest.Ingestor
	replay     *replay.Reader
	clock      clock.Clock
	mux        *http.ServeMux
}

// New builds a Server over st, using clk for the pull path's server_time.
func New(st *store.Store, clk clock.Clock) *Server {
	s := &Server{
		store:      st,
		projection: projection.NewReader(st.DB()),
		ingestor:   ingest.New(st),
		replay:     replay.NewReader(st.DB()),
		clock:      clk,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /sync", s.handleSyncGet)
	mux.HandleFunc("POST /sync", s.handleSyncPost)
	mux.HandleFunc("GET /sync/v2", s.handleSyncV2)
	s.mux = mux

	return s
}

// Handler returns the request-logged, request-ID-tagged http.Handler for
// the whole surface.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.mux)
}

// withRequestLogging tags each request with a uuid.NewV7() request id and
// logs method, path, status, and duration via zerolog on completion.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, err := uuid.NewV7()
		var requestIDStr string
		if err != nil {
			requestIDStr = uuid.NewString()
		} else {
			requestIDStr = requestID.String()
		}

		logger := logging.WithRequestID(requestIDStr)
		ctx := logger.WithContext(r.Context())
		r = r.WithContext(ctx)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logEvent(logger, rec.status).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

func logEvent(logger zerolog.Logger, status int) *zerolog.Event {
	if status >= 500 {
		return logger.Error()
	}
	return logger.Info()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
