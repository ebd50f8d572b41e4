// HTTP replay backend for trace sources
// Serves the trace query API from any source so remote clients can browse local exports
package server

import (
	"net/http"

	"github.com/andrewh/clicktrace/pkg/source"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter exposes src under /api using the {status, data, message}
// response envelope.
func NewRouter(src source.Source, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{src: src, logger: logger}

	r := mux.NewRouter().UseEncodedPath()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/services", h.services).Methods(http.MethodGet)
	api.HandleFunc("/operations", h.operations).Methods(http.MethodGet)
	api.HandleFunc("/traces", h.traces).Methods(http.MethodGet)
	api.HandleFunc("/trace/{id}", h.trace).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, logger, http.StatusNotFound, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, logger, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed")
	})
	r.Use(accessLog(logger))
	return r
}

// accessLog records one debug line per request.
func accessLog(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("api request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
