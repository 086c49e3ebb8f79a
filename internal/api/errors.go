package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"exchange/internal/exchange"
	"exchange/internal/matching"
)

var (
	errBadRequest    = errors.New("bad request")
	errNoPersistence = errors.New("order history requires persistence")
)

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, matching.ErrInvalidInput),
		errors.Is(err, matching.ErrInvalidQuantity),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, matching.ErrNotFound),
		errors.Is(err, exchange.ErrUnknownInstrument):
		return http.StatusNotFound
	case errors.Is(err, matching.ErrAlreadyTerminal):
		return http.StatusConflict
	case errors.Is(err, errNoPersistence):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to its status. Internal errors are logged and their
// detail withheld from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
