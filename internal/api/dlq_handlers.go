package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/internal/outbox"
	"github.com/vaidashi/storefront-api/internal/repository"
)

// PaginationResponse is a page of dead letter messages
type PaginationResponse struct {
	Items    []*models.DeadLetterMessage `json:"items"`
	Count    int                         `json:"count"`
	Page     int                         `json:"page"`
	PageSize int                         `json:"page_size"`
	Status   string                      `json:"status,omitempty"`
}

// getDeadLettersHandler returns a page of dead letter messages, optionally by status
func (s *Server) getDeadLettersHandler(w http.ResponseWriter, r *http.Request) {
	if s.services.DeadLetters == nil {
		s.respondWithError(w, http.StatusServiceUnavailable, "Dead letter queue is not configured")
		return
	}

	q := r.URL.Query()

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.Atoi(q.Get("pageSize"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	status := models.DeadLetterStatus(q.Get("status"))
	switch status {
	case "", models.DeadLetterStatusPending, models.DeadLetterStatusRetrying,
		models.DeadLetterStatusResolved, models.DeadLetterStatusDiscarded:
	default:
		s.respondWithError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	messages, err := s.services.DeadLetters.List(r.Context(), status, pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.Error("Failed to fetch dead letter messages", "error", err)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch dead letter messages")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: PaginationResponse{
		Items:    messages,
		Count:    len(messages),
		Page:     page,
		PageSize: pageSize,
		Status:   string(status),
	}})
}

// retryDeadLetterHandler replays a pending dead letter message immediately
func (s *Server) retryDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	if s.services.DLQRetrier == nil {
		s.respondWithError(w, http.StatusServiceUnavailable, "Dead letter queue is not configured")
		return
	}

	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid message ID")
		return
	}

	if err := s.services.DLQRetrier.RetryNow(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			s.respondWithError(w, http.StatusNotFound, "Dead letter message not found")
		case errors.Is(err, outbox.ErrNotPending):
			s.respondWithError(w, http.StatusConflict, "Only pending messages can be retried")
		default:
			s.logger.Error("Dead letter retry failed", "error", err, "messageID", id)
			s.respondWithError(w, http.StatusBadGateway, "Retry failed, message returned to the queue")
		}
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Dead letter message replayed",
			"id":      idStr,
		},
	})
}

// discardDeadLetterHandler discards a dead letter message
func (s *Server) discardDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	if s.services.DeadLetters == nil {
		s.respondWithError(w, http.StatusServiceUnavailable, "Dead letter queue is not configured")
		return
	}

	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid message ID")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}

	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Reason == "" {
		req.Reason = "No reason provided"
	}

	if err := s.services.DeadLetters.MarkAsDiscarded(r.Context(), id, req.Reason); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Dead letter message not found")
			return
		}
		s.logger.Error("Failed to discard message", "error", err, "messageID", id)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to discard message")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Dead letter message discarded",
			"id":      idStr,
		},
	})
}
