package web

// errors.go provides unified error response handling for the API.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Status is derived from the error's code or sentinel
//  4. Technical error is logged with the request ID for correlation
//  5. core.MapError supplies the user-facing message

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/sheetimport/internal/apperrors"
	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/logging"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Target  string `json:"target,omitempty"`
	Column  string `json:"column,omitempty"`
}

// errBadRequest marks request validation failures raised by handlers.
var errBadRequest = errors.New("bad request")

// badRequest wraps msg so statusFor maps it to 400 and the client sees msg.
func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string        { return e.msg }
func (e *requestError) Is(target error) bool { return target == errBadRequest }

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, core.ErrReservedTarget):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	switch apperrors.Code(err) {
	case apperrors.CodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case apperrors.CodeParseFailed:
		return http.StatusUnprocessableEntity
	case apperrors.CodeBackendUnconfigured:
		return http.StatusServiceUnavailable
	case apperrors.CodeImageDecode:
		return http.StatusBadRequest
	case apperrors.CodeWriteFailed, apperrors.CodeCreateFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorBody builds the response body for err.
func errorBody(err error) ErrorResponse {
	var re *requestError
	if errors.As(err, &re) {
		return ErrorResponse{Error: re.msg, Message: re.msg, Code: "REQ000"}
	}
	msg := core.MapError(err)
	target, column := apperrors.Location(err)
	return ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Target:  target,
		Column:  column,
	}
}

// respondError logs the technical error and writes a user-facing JSON
// error.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	logRequestError(r, err)
	writeJSON(w, statusFor(err), errorBody(err))
}

// logRequestError logs err with the request line at a level matching its
// status.
func logRequestError(r *http.Request, err error) {
	status := statusFor(err)
	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", core.MapError(err).Code,
		"error", err.Error(),
	}
	if status >= 500 {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}
}
