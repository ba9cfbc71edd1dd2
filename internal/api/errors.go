package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sh1vu7/secreteshare/internal/flow"
	"github.com/sh1vu7/secreteshare/internal/share"
)

// Error codes of the JSON envelope.
const (
	codeBadRequest    = "bad_request"
	codeUnauthorized  = "unauthorized"
	codeNotFound      = "not_found"
	codeGone          = "gone"
	codeRateLimited   = "rate_limited"
	codeValidation    = "validation"
	codeNotPermitted  = "not_permitted"
	codeTransport     = "transport"
	codePersistence   = "persistence"
	codeInternal      = "internal"
	codeUndelivered   = "undelivered"
	codeInvalidAction = "invalid_action"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// classify maps an error from the core to a status and envelope.
func classify(err error) (int, errorDetail) {
	var fe *flow.Error
	if errors.As(err, &fe) {
		if fe.Code == flow.CodeInvalidAction {
			return http.StatusBadRequest, errorDetail{Code: codeInvalidAction, Message: fe.Message}
		}
		return http.StatusConflict, errorDetail{Code: string(fe.Code), Message: fe.Message}
	}

	switch {
	case share.IsValidation(err):
		return http.StatusUnprocessableEntity, errorDetail{Code: codeValidation, Message: share.UserMessage(err)}
	case share.IsNotPermitted(err):
		return http.StatusForbidden, errorDetail{Code: codeNotPermitted, Message: share.UserMessage(err)}
	case errors.Is(err, share.ErrNotFound):
		return http.StatusNotFound, errorDetail{Code: codeNotFound, Message: "no such secret"}
	case share.IsTransport(err):
		return http.StatusBadGateway, errorDetail{Code: codeTransport, Message: share.UserMessage(err)}
	case share.IsPersistence(err):
		return http.StatusServiceUnavailable, errorDetail{Code: codePersistence, Message: share.UserMessage(err)}
	}
	return http.StatusInternalServerError, errorDetail{Code: codeInternal, Message: share.UserMessage(err)}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: detail})
}
