package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"fundportal/internal/core"
	"fundportal/internal/log"
)

// validationErrors are answered with 400.
var validationErrors = []error{
	core.ErrInvalidInput,
	core.ErrInvalidAmount,
	core.ErrInvalidRate,
	core.ErrInvalidDate,
	core.ErrInvalidFinancialYear,
	core.ErrInvalidStatus,
	core.ErrEmptyTitle,
	core.ErrEmptyName,
	core.ErrEmptyCode,
	core.ErrInvalidKind,
	core.ErrMissingReference,
}

// ruleErrors are well-formed requests the workflow refuses, answered with 422.
var ruleErrors = []error{
	core.ErrNotAssignable,
	core.ErrDemandNotPending,
	core.ErrDemandNotReturned,
	core.ErrVendorNotEligible,
	core.ErrExceedsDemandable,
	core.ErrExceedsBalance,
	core.ErrRemarkRequired,
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, core.ErrUnauthorized), errors.Is(err, core.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict), errors.Is(err, core.ErrInUse):
		return http.StatusConflict
	}
	for _, target := range ruleErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// errorMessage is the text shown to the caller. Internal errors are not
// described.
func errorMessage(err error, status int) string {
	switch status {
	case http.StatusInternalServerError:
		return "internal server error"
	case http.StatusUnauthorized:
		if errors.Is(err, core.ErrInvalidCredentials) {
			return core.ErrInvalidCredentials.Error()
		}
		return core.ErrUnauthorized.Error()
	}
	return err.Error()
}

// APIError is the body of every failed API response.
type APIError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeAPIError logs err and answers with its status and a JSON body.
func writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logError(r, err, status)
	writeJSON(w, status, APIError{Error: errorMessage(err, status)})
}

// writeUIError answers an htmx request with an inline error and a
// notification.
func writeUIError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logError(r, err, status)
	msg := errorMessage(err, status)
	b := ErrorResponse(status, msg).TriggerErrorNotification(msg)
	if errors.Is(err, core.ErrUnauthorized) {
		b.Redirect("/login")
	}
	b.Write(w)
}

func logError(r *http.Request, err error, status int) {
	log.NewStructuredLogger(log.FromContext(r.Context())).LogRequestError(r.Context(), r, err, status)
}
