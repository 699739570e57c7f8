package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/vaidashi/storefront-api/internal/checkout"
	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/internal/payment"
)

type checkoutRequest struct {
	Name          string               `json:"name"`
	Address       string               `json:"address"`
	Phone         string               `json:"phone"`
	Email         string               `json:"email"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod"`
	Cart          []checkout.CartItem  `json:"cart"`
}

type formField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type formPayload struct {
	Action string      `json:"action"`
	Method string      `json:"method"`
	Fields []formField `json:"fields"`
}

type checkoutResponse struct {
	OrderID      string                 `json:"orderId"`
	Next         checkout.Next          `json:"next"`
	Confirmation *checkout.Confirmation `json:"confirmation,omitempty"`
	Form         *formPayload           `json:"form,omitempty"`
	PaymentURL   string                 `json:"paymentUrl,omitempty"`
}

func newFormPayload(f *payment.Form) *formPayload {
	if f == nil {
		return nil
	}

	fields := make([]formField, 0, len(f.Fields))
	for _, field := range f.Fields {
		fields = append(fields, formField{Name: field.Name, Value: field.Value})
	}

	return &formPayload{Action: f.Action, Method: http.MethodPost, Fields: fields}
}

// wantsHTML reports whether the caller is a browser navigating the checkout
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// checkoutHandler places the order and hands back the payment step
func (s *Server) checkoutHandler(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	outcome, err := s.services.Checkout.Checkout(r.Context(), checkout.Request{
		Name:          req.Name,
		Address:       req.Address,
		Phone:         req.Phone,
		Email:         req.Email,
		PaymentMethod: req.PaymentMethod,
		Cart:          checkout.NewCart(req.Cart...),
		Origin:        s.config.PublicOrigin,
	})
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	if wantsHTML(r) {
		switch outcome.Next {
		case checkout.NextFormPost:
			s.renderPaymentForm(w, *outcome.Form)
			return
		case checkout.NextRedirect:
			http.Redirect(w, r, outcome.PaymentURL, http.StatusSeeOther)
			return
		}
	}

	s.respondWithJSON(w, http.StatusOK, checkoutResponse{
		OrderID:      outcome.OrderID,
		Next:         outcome.Next,
		Confirmation: outcome.Confirmation,
		Form:         newFormPayload(outcome.Form),
		PaymentURL:   outcome.PaymentURL,
	})
}

// renderPaymentForm writes the page that posts form to the gateway on load
func (s *Server) renderPaymentForm(w http.ResponseWriter, form payment.Form) {
	var buf bytes.Buffer
	if err := payment.RenderAutoSubmit(&buf, form); err != nil {
		s.logger.Error("Failed to render payment form", "error", err)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to render payment form")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
