// Package httputil holds response helpers shared by every HTTP handler.
package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"

	dErrors "flowgate/pkg/domain-errors"
)

// ErrorBody is the single error body shape: {"errors": [tag, ...]}.
type ErrorBody struct {
	Errors []string `json:"errors"`
}

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeUnauthorized:            http.StatusUnauthorized,
	dErrors.CodeInvalidClient:           http.StatusUnauthorized,
	dErrors.CodeForbidden:               http.StatusForbidden,
	dErrors.CodeNotFound:                http.StatusNotFound,
	dErrors.CodeValidation:              http.StatusBadRequest,
	dErrors.CodeBadRequest:              http.StatusBadRequest,
	dErrors.CodeMissingParam:            http.StatusBadRequest,
	dErrors.CodeUnknownAction:           http.StatusBadRequest,
	dErrors.CodeInvalidConfirmationCode: http.StatusBadRequest,
	dErrors.CodeInvalidStatus:           http.StatusBadRequest,
	dErrors.CodeMissingPersonID:         http.StatusBadRequest,
	dErrors.CodeConsentsAlreadyCreated:  http.StatusBadRequest,
	dErrors.CodeInvariantViolation:      http.StatusBadRequest,
	dErrors.CodeInvalidRequest:          http.StatusBadRequest,
	dErrors.CodeUnsupportedGrantType:    http.StatusBadRequest,
	dErrors.CodeConflict:                http.StatusConflict,
	dErrors.CodeUnsupportedMediaType:    http.StatusUnsupportedMediaType,
	dErrors.CodeTooManyRequests:         http.StatusTooManyRequests,
	dErrors.CodeTimeout:                 http.StatusGatewayTimeout,
	dErrors.CodeGateway:                 http.StatusInternalServerError,
	dErrors.CodeBackendConnection:       http.StatusInternalServerError,
	dErrors.CodeBackendClient:           http.StatusInternalServerError,
	dErrors.CodeInternal:                http.StatusInternalServerError,
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	if status, ok := statusByCode[dErrors.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError writes err as {"errors":[tag]} with the mapped status.
// Unclassified errors are reported as internal_error.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, StatusFor(err), ErrorBody{Errors: []string{string(dErrors.CodeOf(err))}})
}

// WriteErrors writes several tags at once under a single status.
func WriteErrors(w http.ResponseWriter, status int, tags ...string) {
	WriteJSON(w, status, ErrorBody{Errors: tags})
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// SetTotalCount sets the X-Total-Count header.
func SetTotalCount(w http.ResponseWriter, n int) {
	w.Header().Set("X-Total-Count", strconv.Itoa(n))
}

// QueryInt parses an optional non-negative integer query parameter.
// ok is false when the parameter is absent.
func QueryInt(r *http.Request, name string) (value int64, ok bool, err error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	value, err = strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, true, dErrors.New(dErrors.CodeValidation, "invalid "+name)
	}
	return value, true, nil
}
