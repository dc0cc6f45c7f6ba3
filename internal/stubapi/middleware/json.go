package middleware

import (
	"encoding/json"
	"net/http"

	"go-storefront-session/internal/model"
)

func writeFailure(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.Envelope[any]{
		Success: false,
		Message: message,
		Error:   &model.APIError{Code: code, Message: message},
	})
}
