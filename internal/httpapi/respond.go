package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"video-detector/internal/media"
	"video-detector/internal/presenter"
	"video-detector/internal/session"
)

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error string `json:"error"`
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, media.ErrInvalidMediaKind):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, media.ErrMediaAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, media.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, media.ErrStreamPending),
		errors.Is(err, media.ErrStreamSuperseded),
		errors.Is(err, session.ErrCannotProcess),
		errors.Is(err, presenter.ErrNoMedia),
		errors.Is(err, presenter.ErrNotExportable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnf("Encode response: %v", err)
	}
}

func (s *Server) sendOK(w http.ResponseWriter, v any) {
	s.sendJSON(w, http.StatusOK, v)
}

func (s *Server) sendError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Errorf("Request failed: %v", err)
	}
	s.sendJSON(w, status, errorBody{Error: err.Error()})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}
