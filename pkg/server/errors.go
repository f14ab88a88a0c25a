package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zero5yt/StreamixBot2.0/pkg/linkstore"
	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
	"github.com/zero5yt/StreamixBot2.0/pkg/pool"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

// statusFor classifies errors raised before any body byte is written.
func statusFor(err error) int {
	switch {
	case errors.Is(err, linkstore.ErrNotFound), errors.Is(err, remote.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, pool.ErrNoConnections), errors.Is(err, pool.ErrConnectionClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := logging.GetLogger()
	event := logger.Debug()
	if status == http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")

	if status == http.StatusRequestedRangeNotSatisfiable || r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, errorResponse{Detail: http.StatusText(status)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := logging.GetLogger()
		logger.Error().Err(err).Msg("Error encoding response")
	}
}
