package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vaidashi/storefront-api/internal/payment"
)

// amountField accepts an amount sent either as a JSON string or a number and
// keeps its literal text, which is what gets signed.
type amountField string

func (a *amountField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = amountField(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = amountField(n.String())
	return nil
}

type esewaSignatureRequest struct {
	TotalAmount     amountField `json:"total_amount"`
	TransactionUUID string      `json:"transaction_uuid"`
	ProductCode     string      `json:"product_code"`
}

type esewaSignatureResponse struct {
	Signature        string `json:"signature"`
	SignedFieldNames string `json:"signed_field_names"`
}

// esewaSignatureHandler signs total_amount, transaction_uuid and product_code
func (s *Server) esewaSignatureHandler(w http.ResponseWriter, r *http.Request) {
	var req esewaSignatureRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	productCode := req.ProductCode
	if productCode == "" {
		productCode = s.services.ESewa.ProductCode()
	}

	signature, err := s.services.ESewa.Sign(string(req.TotalAmount), req.TransactionUUID, productCode)
	if err != nil {
		if errors.Is(err, payment.ErrMissingSigningField) {
			s.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("eSewa signing failed", "error", err, "transactionUUID", req.TransactionUUID)
		s.respondWithError(w, http.StatusBadGateway, "eSewa connection failed")
		return
	}

	s.respondWithJSON(w, http.StatusOK, esewaSignatureResponse{
		Signature:        signature,
		SignedFieldNames: payment.SignedFieldNames,
	})
}

type khaltiInitiateRequest struct {
	Amount  float64 `json:"amount"`
	OrderID string  `json:"orderId"`
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   string  `json:"phone"`
}

type khaltiInitiateResponse struct {
	PaymentURL string `json:"payment_url"`
	Pidx       string `json:"pidx,omitempty"`
}

// khaltiInitiateHandler opens a Khalti session for an existing order
func (s *Server) khaltiInitiateHandler(w http.ResponseWriter, r *http.Request) {
	var req khaltiInitiateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.OrderID == "" || req.Amount <= 0 {
		s.respondWithError(w, http.StatusBadRequest, "amount and orderId are required")
		return
	}

	resp, err := s.services.Khalti.Initiate(r.Context(), payment.InitiateRequest{
		Amount:  req.Amount,
		OrderID: req.OrderID,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Origin:  s.config.PublicOrigin,
	})
	if err != nil {
		s.respondWithJSON(w, http.StatusBadGateway, ErrorResponse{Error: "Khalti connection failed", OrderID: req.OrderID})
		return
	}

	s.respondWithJSON(w, http.StatusOK, khaltiInitiateResponse{PaymentURL: resp.PaymentURL, Pidx: resp.Pidx})
}
