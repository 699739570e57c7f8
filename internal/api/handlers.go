package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vaidashi/storefront-api/internal/checkout"
	apperrors "github.com/vaidashi/storefront-api/pkg/errors"
)

// ApiResponse wraps admin responses
type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ErrorResponse is the body of every failed storefront request
type ErrorResponse struct {
	Error   string                `json:"error"`
	Fields  []checkout.FieldError `json:"fields,omitempty"`
	OrderID string                `json:"orderId,omitempty"`
}

// MessageResponse acknowledges a write
type MessageResponse struct {
	Message string `json:"message"`
	OrderID string `json:"orderId,omitempty"`
}

// Health represents the health check response
type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

const version = "1.0.0"

// maxJSONBody caps JSON request bodies
const maxJSONBody = 1 << 20

// healthCheckHandler handles the health check endpoint
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, Health{
		Status:    "ok",
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeJSON reads a JSON body into dst and answers 400 when it cannot
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

// respondWithAppError maps err onto its HTTP status and a client safe message
func (s *Server) respondWithAppError(w http.ResponseWriter, err error) {
	code := apperrors.StatusCode(err)
	resp := ErrorResponse{Error: http.StatusText(code)}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Message != "" {
			resp.Error = appErr.Message
		}
		if id, ok := appErr.Context["orderID"].(string); ok {
			resp.OrderID = id
		}
	}

	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "status", code, "error", err)
	}

	s.respondWithJSON(w, code, resp)
}

// respondWithValidation answers 400 with the field errors of v
func (s *Server) respondWithValidation(w http.ResponseWriter, v checkout.Validation) {
	s.respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:  "Please fill in all required fields",
		Fields: v.Errors,
	})
}

// respondWithError sends a JSON response with an error message
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, ErrorResponse{Error: message})
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
