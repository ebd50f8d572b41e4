// Request handlers and envelope encoding for the replay API
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/andrewh/clicktrace/pkg/source"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

type handlers struct {
	src    source.Source
	logger *zap.Logger
}

func (h *handlers) services(w http.ResponseWriter, r *http.Request) {
	services, err := h.src.Services(r.Context())
	if err != nil {
		h.fail(w, "listing services", err)
		return
	}
	writeData(w, h.logger, services)
}

func (h *handlers) operations(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	if service == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing service parameter")
		return
	}
	ops, err := h.src.Operations(r.Context(), service)
	if err != nil {
		h.fail(w, "listing operations", err)
		return
	}
	writeData(w, h.logger, ops)
}

func (h *handlers) traces(w http.ResponseWriter, r *http.Request) {
	q, err := source.DecodeQuery(r.URL.Query())
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	for _, c := range q.Tags {
		if _, err := c.Compile(); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid tag filter: "+err.Error())
			return
		}
	}
	traces, err := h.src.Traces(r.Context(), q)
	if err != nil {
		h.fail(w, "querying traces", err)
		return
	}
	writeData(w, h.logger, traces)
}

func (h *handlers) trace(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(mux.Vars(r)["id"])
	if err != nil || id == "" {
		writeError(w, h.logger, http.StatusBadRequest, "invalid trace ID")
		return
	}
	tr, err := h.src.Trace(r.Context(), id)
	if err != nil {
		h.fail(w, "fetching trace", err)
		return
	}
	writeData(w, h.logger, tr)
}

func (h *handlers) fail(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, source.ErrNotFound) {
		writeError(w, h.logger, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error("Error encountered when "+action, zap.Error(err))
	writeError(w, h.logger, http.StatusInternalServerError, err.Error())
}

func writeData(w http.ResponseWriter, logger *zap.Logger, data any) {
	write(w, logger, http.StatusOK, envelope{Status: statusSuccess, Data: data})
}

// writeError reports msg in both message and data so clients reading
// either field see it.
func writeError(w http.ResponseWriter, logger *zap.Logger, code int, msg string) {
	write(w, logger, code, envelope{Status: statusError, Data: msg, Message: msg})
}

func write(w http.ResponseWriter, logger *zap.Logger, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Error encountered when encoding response", zap.Error(err))
	}
}
