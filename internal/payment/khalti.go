package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vaidashi/storefront-api/internal/config"
	"github.com/vaidashi/storefront-api/pkg/circuitbreaker"
	apperrors "github.com/vaidashi/storefront-api/pkg/errors"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

// InitiateRequest describes a hosted payment session. Amount is in rupees.
type InitiateRequest struct {
	Amount  float64
	OrderID string
	Name    string
	Email   string
	Phone   string
	Origin  string
}

// InitiateResponse is Khalti's answer to an initiation
type InitiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	ExpiresIn  int    `json:"expires_in,omitempty"`
}

type khaltiCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone"`
}

type khaltiInitiateBody struct {
	ReturnURL         string         `json:"return_url"`
	WebsiteURL        string         `json:"website_url"`
	Amount            int64          `json:"amount"`
	PurchaseOrderID   string         `json:"purchase_order_id"`
	PurchaseOrderName string         `json:"purchase_order_name"`
	CustomerInfo      khaltiCustomer `json:"customer_info"`
}

// KhaltiClient talks to the Khalti ePayment API. Calls are never retried;
// repeated upstream failures open the breaker and fail fast.
type KhaltiClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     logger.Logger
}

// NewKhaltiClient creates a new KhaltiClient
func NewKhaltiClient(cfg config.KhaltiConfig, logger logger.Logger) *KhaltiClient {
	return &KhaltiClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
			Name:             "khalti",
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			HalfOpenMaxCalls: 1,
		}),
		logger: logger,
	}
}

// Breaker exposes the client's circuit breaker for the admin endpoints
func (c *KhaltiClient) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// ToPaisa converts rupees to the integer paisa Khalti expects
func ToPaisa(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Initiate opens a hosted payment session and returns its details.
// Every failure is an ErrGateway; an answer without a payment URL is a failure.
func (c *KhaltiClient) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if !c.breaker.Allow() {
		c.logger.Warn("Khalti circuit open, failing fast", "orderID", req.OrderID)
		return nil, apperrors.NewGatewayError("Khalti is temporarily unavailable").
			WithCause(apperrors.ErrServiceUnavailable)
	}

	resp, err := c.initiate(ctx, req)
	if err != nil {
		// a customer abandoning checkout says nothing about Khalti's health
		if ctx.Err() != nil {
			c.breaker.Release()
			c.logger.Warn("Khalti initiation abandoned", "error", ctx.Err(), "orderID", req.OrderID)
			return nil, apperrors.NewGatewayError("Khalti initiation failed").WithCause(err)
		}

		if apperrors.IsRetryable(err) {
			c.breaker.Failure()
		} else {
			c.breaker.Success()
		}
		c.logger.Error("Khalti initiation failed", "error", err, "orderID", req.OrderID)
		return nil, apperrors.NewGatewayError("Khalti initiation failed").WithCause(err)
	}

	c.breaker.Success()

	c.logger.Info("Khalti payment initiated", "orderID", req.OrderID, "pidx", resp.Pidx)
	return resp, nil
}

func (c *KhaltiClient) initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	body, err := json.Marshal(khaltiInitiateBody{
		ReturnURL:         req.Origin + "/order-success",
		WebsiteURL:        req.Origin,
		Amount:            ToPaisa(req.Amount),
		PurchaseOrderID:   req.OrderID,
		PurchaseOrderName: "Order " + req.OrderID,
		CustomerInfo: khaltiCustomer{
			Name:  req.Name,
			Email: req.Email,
			Phone: req.Phone,
		},
	})
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/epayment/initiate/", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Sprintf("failed to create request: %v", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Key "+c.secretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, apperrors.NewTimeoutError("khalti request timed out")
		}
		return nil, apperrors.NewTemporaryError(fmt.Sprintf("failed to send request: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NewTemporaryError(fmt.Sprintf("failed to read response body: %v", err))
	}

	if resp.StatusCode >= 500 {
		return nil, apperrors.NewTemporaryError(fmt.Sprintf("khalti returned %d", resp.StatusCode))
	}

	if resp.StatusCode >= 400 {
		return nil, apperrors.NewAppError(
			apperrors.ErrGateway,
			fmt.Sprintf("khalti rejected initiation (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
			http.StatusBadGateway,
			false,
		)
	}

	var out InitiateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrGateway,
			fmt.Sprintf("failed to parse response: %v", err), http.StatusBadGateway, false)
	}

	if out.PaymentURL == "" {
		return nil, apperrors.NewAppError(apperrors.ErrGateway,
			"khalti response has no payment_url", http.StatusBadGateway, false)
	}

	return &out, nil
}
