package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

// FromResponse builds an APIError out of a non-2xx backend response.
// Both {"error":{"code","message"}} and the flat {"message":...} bodies are
// understood; anything else falls back to the HTTP status text.
func FromResponse(status int, body []byte) *APIError {
	var parsed struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}

	apiErr := &APIError{Code: codeForStatus(status), Message: http.StatusText(status), HTTPStatus: status}
	if err := json.Unmarshal(body, &parsed); err != nil {
		if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 512 {
			apiErr.Details = text
		}
		return apiErr
	}

	if parsed.Message != "" {
		apiErr.Message = parsed.Message
	}

	if len(parsed.Error) > 0 {
		var nested struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details string `json:"details"`
		}
		var flat string
		switch {
		case json.Unmarshal(parsed.Error, &nested) == nil:
			if nested.Code != "" {
				apiErr.Code = nested.Code
			}
			if nested.Message != "" {
				apiErr.Message = nested.Message
			}
			apiErr.Details = nested.Details
		case json.Unmarshal(parsed.Error, &flat) == nil && flat != "":
			apiErr.Details = flat
		}
	}

	return apiErr
}

// IsStatus reports whether err carries one of the given HTTP statuses.
func IsStatus(err error, statuses ...int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	for _, status := range statuses {
		if apiErr.HTTPStatus == status {
			return true
		}
	}

	return false
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return "REQUEST_TIMEOUT"
	}

	if status >= 500 {
		return "INTERNAL_ERROR"
	}

	return "HTTP_ERROR"
}
