package api

import (
	"net/http"
	"strings"

	"github.com/vaidashi/storefront-api/internal/checkout"
)

type contactRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message" validate:"required,max=5000"`
}

func (s *Server) submitContactHandler(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)

	if v := checkout.Validate(req); !v.Valid {
		s.respondWithValidation(w, v)
		return
	}

	if _, err := s.services.Contacts.Submit(r.Context(), req.Name, req.Email, req.Message); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Message received!"})
}

func (s *Server) getContactMessagesHandler(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.services.Contacts.List(r.Context())
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, msgs)
}
