package checkout

import (
	"context"
	"fmt"

	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/internal/payment"
	apperrors "github.com/vaidashi/storefront-api/pkg/errors"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

// OrderCreator persists a new order
type OrderCreator interface {
	CreateOrder(ctx context.Context, draft models.OrderDraft) (*models.Order, error)
}

// SigningGateway is a processor reached by posting a signed form
type SigningGateway interface {
	ProductCode() string
	Sign(totalAmount, transactionUUID, productCode string) (string, error)
	BuildForm(amount float64, orderID, signature, origin string) payment.Form
}

// HostedGateway is a processor that hands out a hosted payment page
type HostedGateway interface {
	Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.InitiateResponse, error)
}

// Next tells the client what to do after checkout
type Next string

const (
	NextConfirmed Next = "confirmed"
	NextFormPost  Next = "form_post"
	NextRedirect  Next = "redirect"
)

// Request is a submitted checkout: shipping details, payment choice and the session cart
type Request struct {
	Name          string               `json:"name" validate:"required"`
	Address       string               `json:"address" validate:"required"`
	Phone         string               `json:"phone" validate:"required"`
	Email         string               `json:"email" validate:"omitempty,email"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod" validate:"required,oneof=COD eSewa Khalti"`
	Cart          *Cart                `json:"-" validate:"-"`

	// Origin is where the customer returns after a gateway payment
	Origin string `json:"-" validate:"-"`
}

// Confirmation is shown for an order that needs no further payment step
type Confirmation struct {
	OrderID       string               `json:"orderId"`
	CustomerName  string               `json:"customerName"`
	Address       string               `json:"address"`
	Phone         string               `json:"phone"`
	Items         models.OrderItems    `json:"items"`
	TotalAmount   float64              `json:"totalAmount"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod"`
}

// Outcome is the result of a checkout. OrderID is set whenever the order was
// stored, including when the payment step failed afterwards.
type Outcome struct {
	OrderID      string
	Next         Next
	Confirmation *Confirmation
	Form         *payment.Form
	PaymentURL   string
}

// Coordinator runs checkout: validate, store the order, then branch on the payment method
type Coordinator struct {
	orders OrderCreator
	esewa  SigningGateway
	khalti HostedGateway
	logger logger.Logger
}

// NewCoordinator creates a Coordinator. A nil gateway makes its payment method fail.
func NewCoordinator(orders OrderCreator, esewa SigningGateway, khalti HostedGateway, logger logger.Logger) *Coordinator {
	return &Coordinator{
		orders: orders,
		esewa:  esewa,
		khalti: khalti,
		logger: logger,
	}
}

// ValidateRequest checks the shipping form and the cart
func ValidateRequest(req Request) Validation {
	v := Validate(req)
	if v.Valid {
		v.Errors = nil
	}

	if req.Cart == nil || req.Cart.IsEmpty() {
		v.Errors = append(v.Errors, FieldError{Field: "cart", Rule: "min", Message: "cart must contain at least 1 item(s)"})
	} else {
		for i, item := range req.Cart.Items() {
			iv := Validate(item)
			for _, fe := range iv.Errors {
				fe.Field = fmt.Sprintf("cart[%d].%s", i, fe.Field)
				v.Errors = append(v.Errors, fe)
			}
		}
	}

	v.Valid = len(v.Errors) == 0
	return v
}

// Checkout stores the order and prepares the payment step. Nothing is retried.
// A failed payment step leaves the order Pending and returns its id together
// with an ErrGateway error.
func (c *Coordinator) Checkout(ctx context.Context, req Request) (*Outcome, error) {
	if v := ValidateRequest(req); !v.Valid {
		return nil, apperrors.NewValidationError("Please fill in all required fields").WithCause(v.Err())
	}

	draft := models.OrderDraft{
		CustomerName:  req.Name,
		Address:       req.Address,
		Phone:         req.Phone,
		Email:         req.Email,
		Items:         req.Cart.Snapshot(),
		TotalAmount:   req.Cart.Total(),
		PaymentMethod: req.PaymentMethod,
	}

	order, err := c.orders.CreateOrder(ctx, draft)
	if err != nil {
		c.logger.Error("Checkout failed, order not stored", "error", err)
		return nil, err
	}

	switch order.PaymentMethod {
	case models.PaymentESewa:
		return c.esewaStep(order, req.Origin)
	case models.PaymentKhalti:
		return c.khaltiStep(ctx, order, req)
	default:
		req.Cart.Clear()

		c.logger.Info("Order confirmed", "orderID", order.ID, "paymentMethod", order.PaymentMethod)

		return &Outcome{
			OrderID: order.ID,
			Next:    NextConfirmed,
			Confirmation: &Confirmation{
				OrderID:       order.ID,
				CustomerName:  order.CustomerName,
				Address:       order.Address,
				Phone:         order.Phone,
				Items:         order.Items,
				TotalAmount:   order.TotalAmount,
				PaymentMethod: order.PaymentMethod,
			},
		}, nil
	}
}

func (c *Coordinator) esewaStep(order *models.Order, origin string) (*Outcome, error) {
	outcome := &Outcome{OrderID: order.ID}

	if c.esewa == nil {
		return outcome, apperrors.NewGatewayError("eSewa is not available").WithContext("orderID", order.ID)
	}

	signature, err := c.esewa.Sign(payment.FormatAmount(order.TotalAmount), order.ID, c.esewa.ProductCode())
	if err != nil {
		c.logger.Error("eSewa signing failed, order left pending", "error", err, "orderID", order.ID)
		return outcome, apperrors.NewGatewayError("eSewa connection failed").
			WithCause(err).
			WithContext("orderID", order.ID)
	}

	form := c.esewa.BuildForm(order.TotalAmount, order.ID, signature, origin)

	outcome.Next = NextFormPost
	outcome.Form = &form
	return outcome, nil
}

func (c *Coordinator) khaltiStep(ctx context.Context, order *models.Order, req Request) (*Outcome, error) {
	outcome := &Outcome{OrderID: order.ID}

	if c.khalti == nil {
		return outcome, apperrors.NewGatewayError("Khalti is not available").WithContext("orderID", order.ID)
	}

	resp, err := c.khalti.Initiate(ctx, payment.InitiateRequest{
		Amount:  order.TotalAmount,
		OrderID: order.ID,
		Name:    order.CustomerName,
		Email:   order.Email,
		Phone:   order.Phone,
		Origin:  req.Origin,
	})
	if err != nil {
		c.logger.Error("Khalti initiation failed, order left pending", "error", err, "orderID", order.ID)
		return outcome, apperrors.NewGatewayError("Khalti connection failed").
			WithCause(err).
			WithContext("orderID", order.ID)
	}

	if resp == nil || resp.PaymentURL == "" {
		c.logger.Error("Khalti returned no payment URL, order left pending", "orderID", order.ID)
		return outcome, apperrors.NewGatewayError("Khalti initiation failed").WithContext("orderID", order.ID)
	}

	outcome.Next = NextRedirect
	outcome.PaymentURL = resp.PaymentURL
	return outcome, nil
}
