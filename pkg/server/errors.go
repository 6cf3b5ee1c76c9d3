// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// Stable reason tokens exposed to callers in error responses.
const (
	ReasonNoClient                    = "NO_CLIENT"
	ReasonNoTenant                    = "NO_TENANT"
	ReasonTenantMismatch              = "TENANT_MISMATCH"
	ReasonClientTenantMismatch        = "CLIENT_TENANT_MISMATCH"
	ReasonTenantNotAllowed            = "TENANT_NOT_ALLOWED"
	ReasonWrongReferer                = "WRONG_REFERER"
	ReasonWrongCredentials            = "WRONG_CREDENTIALS"
	ReasonInvalidate                  = "INVALIDATE"
	ReasonInvalidCode                 = "INVALID_CODE"
	ReasonChallengeMethodMismatch     = "CODE_CHALLENGE_METHOD_MISMATCH"
	ReasonInvalidScopes               = "INVALID_SCOPES"
	ReasonFormNotParseable            = "FORM_NOT_PARSEABLE"
	ReasonMissingLocation             = "MISSING_LOCATION"
	ReasonUnsupportedGrantType        = "UNSUPPORTED_GRANT_TYPE"
	ReasonGrantTypeNotImplemented     = "GRANT_TYPE_NOT_IMPLEMENTED"
	ReasonCodeStorageAvailability     = "CODE_STORAGE_AVAILABILITY"
	ReasonExpectedValueUnset          = "EXPECTED_VALUE_UNSET"
	ReasonForbidden                   = "FORBIDDEN"
	ReasonResponseTypeNotImplemented  = "RESPONSE_TYPE_NOT_IMPLEMENTED"
	ReasonChallengeMethodUnsupported  = "CODE_CHALLENGE_METHOD_NOT_IMPLEMENTED"
)

// HTTPError is a typed request failure carrying the status code and a stable
// reason token. The top-level error writer renders it as JSON.
type HTTPError struct {
	Status int
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

// Unwrap exposes the wrapped cause.
func (e *HTTPError) Unwrap() error { return e.Err }

// Errorf builds an HTTPError with a formatted cause.
func Errorf(status int, reason, format string, args ...any) *HTTPError {
	return &HTTPError{Status: status, Reason: reason, Err: fmt.Errorf(format, args...)}
}

func badRequest(reason string) *HTTPError {
	return &HTTPError{Status: http.StatusBadRequest, Reason: reason}
}

func forbidden(reason string) *HTTPError {
	return &HTTPError{Status: http.StatusForbidden, Reason: reason}
}

func notFound(reason string) *HTTPError {
	return &HTTPError{Status: http.StatusNotFound, Reason: reason}
}

func notAcceptable(reason string) *HTTPError {
	return &HTTPError{Status: http.StatusNotAcceptable, Reason: reason}
}

func preconditionFailed(reason string) *HTTPError {
	return &HTTPError{Status: http.StatusPreconditionFailed, Reason: reason}
}

func notImplemented(reason string) *HTTPError {
	return &HTTPError{Status: http.StatusNotImplemented, Reason: reason}
}

func storageUnavailable(err error) *HTTPError {
	return &HTTPError{Status: http.StatusInsufficientStorage, Reason: ReasonCodeStorageAvailability, Err: err}
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Status      int    `json:"status"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
	RequestInfo string `json:"requestInfo,omitempty"`
}

// writeError renders an error as the structured JSON error response. Errors
// that are not HTTPError become an opaque 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	httpErr := &HTTPError{}
	if !errors.As(err, &httpErr) {
		httpErr = &HTTPError{
			Status: http.StatusInternalServerError,
			Reason: "INTERNAL_SERVER_ERROR",
			Err:    err,
		}
	}

	requestID := middleware.GetReqID(r.Context())
	if httpErr.Status >= http.StatusInternalServerError {
		logger.Errorw("request failed",
			"reason", httpErr.Reason, "status", httpErr.Status,
			"error", err, "requestId", requestID, "path", r.URL.Path)
	} else {
		logger.Infow("request rejected",
			"reason", httpErr.Reason, "status", httpErr.Status,
			"requestId", requestID, "path", r.URL.Path)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(httpErr.Status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Status:      httpErr.Status,
		Error:       true,
		Reason:      httpErr.Reason,
		RequestInfo: requestID,
	})
}

// handlerFunc is an http handler that may fail with a typed error.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts a failing handler into http.HandlerFunc through the error
// writer.
func handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			writeError(w, r, err)
		}
	}
}
