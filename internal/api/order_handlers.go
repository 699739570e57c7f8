package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vaidashi/storefront-api/internal/checkout"
	"github.com/vaidashi/storefront-api/internal/models"
)

// createOrderHandler stores an order submitted as a complete draft
func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var draft models.OrderDraft
	if !s.decodeJSON(w, r, &draft) {
		return
	}

	if v := checkout.Validate(draft); !v.Valid {
		s.respondWithValidation(w, v)
		return
	}

	order, err := s.services.Orders.CreateOrder(r.Context(), draft)
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Order Success!", OrderID: order.ID})
}

// getOrdersHandler lists every order, newest first
func (s *Server) getOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := s.services.Orders.ListOrders(r.Context())
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, orders)
}

func (s *Server) getOrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.services.Orders.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, order)
}

// deliverOrderHandler marks an order Delivered. Repeating it is harmless.
func (s *Server) deliverOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.services.Orders.DeliverOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, MessageResponse{
		Message: "Order #" + order.ShortRef() + " marked as delivered",
	})
}
