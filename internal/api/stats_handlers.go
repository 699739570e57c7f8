package api

import (
	"net/http"

	"github.com/vaidashi/storefront-api/internal/handlers"
	"github.com/vaidashi/storefront-api/internal/models"
)

// StatsResponse summarises order and event pipeline state for the admin dashboard
type StatsResponse struct {
	Orders      map[models.OrderStatus]int  `json:"orders"`
	Outbox      map[models.OutboxStatus]int `json:"outbox,omitempty"`
	OrderEvents *handlers.OrderStats        `json:"order_events,omitempty"`
}

func (s *Server) getStatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orders, err := s.services.Orders.CountByStatus(ctx)
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	resp := StatsResponse{Orders: orders}

	if s.services.Outbox != nil {
		counts, err := s.services.Outbox.CountByStatus(ctx)
		if err != nil {
			s.logger.Error("Failed to count outbox messages", "error", err)
			s.respondWithError(w, http.StatusInternalServerError, "Failed to count outbox messages")
			return
		}
		resp.Outbox = counts
	}

	// only present when this instance consumes the order topic
	if s.services.OrderEvents != nil {
		stats := s.services.OrderEvents.Stats()
		resp.OrderEvents = &stats
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: resp})
}
