package model

// Envelope is the body shape of every backend response.
type Envelope[T any] struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Data    T         `json:"data"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
