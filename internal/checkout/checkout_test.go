package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/storefront-api/internal/config"
	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/internal/payment"
	apperrors "github.com/vaidashi/storefront-api/pkg/errors"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

func ssd() CartItem {
	return CartItem{ProductID: "prd-ssd", Name: "SSD 1TB", Price: 50, Quantity: 2}
}

func TestCart(t *testing.T) {
	cart := NewCart()
	assert.True(t, cart.IsEmpty())

	cart.Add(CartItem{ProductID: "prd-ssd", Name: "SSD 1TB", Price: 50})
	cart.Add(CartItem{ProductID: "prd-ssd", Name: "SSD 1TB", Price: 50})
	cart.Add(CartItem{ProductID: "prd-ram", Name: "16GB RAM", Price: 35.5, Quantity: 3})

	assert.Equal(t, 5, cart.Count())
	assert.Equal(t, 206.5, cart.Total())

	cart.UpdateQuantity("prd-ram", 0)
	assert.Equal(t, 1, cart.Items()[1].Quantity, "quantity never drops below one")

	cart.Remove("prd-ssd")
	require.Len(t, cart.Items(), 1)
	assert.Equal(t, "prd-ram", cart.Items()[0].ProductID)

	cart.Clear()
	assert.True(t, cart.IsEmpty())
	assert.Zero(t, cart.Total())
}

func TestCart_SnapshotIsIndependent(t *testing.T) {
	cart := NewCart(ssd())
	snap := cart.Snapshot()

	cart.UpdateQuantity("prd-ssd", 9)

	assert.Equal(t, 2, snap[0].Quantity)
	assert.Equal(t, 100.0, snap.Total())
}

func TestValidateRequest(t *testing.T) {
	v := ValidateRequest(Request{
		Email:         "not-an-email",
		PaymentMethod: "Bitcoin",
		Cart:          NewCart(),
	})

	require.False(t, v.Valid)

	fields := map[string]string{}
	for _, fe := range v.Errors {
		fields[fe.Field] = fe.Rule
	}
	assert.Equal(t, map[string]string{
		"name":          "required",
		"address":       "required",
		"phone":         "required",
		"email":         "email",
		"paymentMethod": "oneof",
		"cart":          "min",
	}, fields)
}

func TestValidateRequest_Valid(t *testing.T) {
	v := ValidateRequest(validRequest(models.PaymentCOD))
	assert.True(t, v.Valid)
	assert.NoError(t, v.Err())
}

func TestValidateRequest_BadCartLine(t *testing.T) {
	req := validRequest(models.PaymentCOD)
	req.Cart.Add(CartItem{ProductID: "prd-x", Price: -1})

	v := ValidateRequest(req)
	require.False(t, v.Valid)

	var verr *ValidationError
	require.ErrorAs(t, v.Err(), &verr)
	assert.Equal(t, "cart[1].name", verr.Fields[0].Field)
}

func TestNewCart_KeepsSubmittedQuantity(t *testing.T) {
	cart := NewCart(CartItem{ProductID: "prd-ssd", Name: "SSD 1TB", Price: 50, Quantity: -5})
	assert.Equal(t, -5, cart.Items()[0].Quantity)

	cart.Add(CartItem{ProductID: "prd-ram", Name: "16GB RAM", Price: 35.5})
	assert.Equal(t, 1, cart.Items()[1].Quantity)
}

type fakeOrders struct {
	drafts []models.OrderDraft
	err    error
}

func (f *fakeOrders) CreateOrder(_ context.Context, draft models.OrderDraft) (*models.Order, error) {
	f.drafts = append(f.drafts, draft)
	if f.err != nil {
		return nil, f.err
	}
	return models.NewOrder(draft)
}

type fakeESewa struct {
	*payment.ESewa
	signErr error
	signed  int
}

func (f *fakeESewa) Sign(total, uuid, code string) (string, error) {
	f.signed++
	if f.signErr != nil {
		return "", f.signErr
	}
	return f.ESewa.Sign(total, uuid, code)
}

type fakeKhalti struct {
	resp  *payment.InitiateResponse
	err   error
	calls []payment.InitiateRequest
}

func (f *fakeKhalti) Initiate(_ context.Context, req payment.InitiateRequest) (*payment.InitiateResponse, error) {
	f.calls = append(f.calls, req)
	return f.resp, f.err
}

func validRequest(method models.PaymentMethod) Request {
	return Request{
		Name:          "Sita",
		Address:       "Kathmandu",
		Phone:         "9800000000",
		Email:         "sita@example.com",
		PaymentMethod: method,
		Cart:          NewCart(ssd()),
		Origin:        "https://shop.example.com",
	}
}

type harness struct {
	orders *fakeOrders
	esewa  *fakeESewa
	khalti *fakeKhalti
	coord  *Coordinator
}

func newHarness() *harness {
	h := &harness{
		orders: &fakeOrders{},
		esewa: &fakeESewa{ESewa: payment.NewESewa(config.ESewaConfig{
			FormURL:     "https://rc-epay.esewa.com.np/api/epay/main/v2/form",
			ProductCode: "EPAYTEST",
			SecretKey:   "8gBm/:&EnhH.1/q",
		})},
		khalti: &fakeKhalti{resp: &payment.InitiateResponse{Pidx: "p1", PaymentURL: "https://pay.khalti.com/?pidx=p1"}},
	}
	h.coord = NewCoordinator(h.orders, h.esewa, h.khalti, logger.NewNopLogger())
	return h
}

func TestCheckout_CashOnDelivery(t *testing.T) {
	h := newHarness()
	req := validRequest(models.PaymentCOD)

	outcome, err := h.coord.Checkout(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, h.orders.drafts, 1)
	assert.Equal(t, 100.0, h.orders.drafts[0].TotalAmount)
	assert.Equal(t, NextConfirmed, outcome.Next)
	assert.Equal(t, outcome.OrderID, outcome.Confirmation.OrderID)
	assert.Equal(t, 100.0, outcome.Confirmation.TotalAmount)
	assert.Equal(t, "SSD 1TB", outcome.Confirmation.Items[0].Name)

	assert.True(t, req.Cart.IsEmpty(), "cart cleared on confirmation")
	assert.Zero(t, h.esewa.signed)
	assert.Empty(t, h.khalti.calls)
}

func TestCheckout_ESewa(t *testing.T) {
	h := newHarness()
	req := validRequest(models.PaymentESewa)

	outcome, err := h.coord.Checkout(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, NextFormPost, outcome.Next)
	require.NotNil(t, outcome.Form)
	assert.Equal(t, outcome.OrderID, outcome.Form.Get("transaction_uuid"))
	assert.Equal(t, "100", outcome.Form.Get("total_amount"))
	assert.Equal(t, "https://shop.example.com/order-success", outcome.Form.Get("success_url"))

	want, _ := payment.NewSigner("8gBm/:&EnhH.1/q").Sign("100", outcome.OrderID, "EPAYTEST")
	assert.Equal(t, want, outcome.Form.Get("signature"))

	assert.False(t, req.Cart.IsEmpty(), "gateway paths leave the cart alone")
}

func TestCheckout_ESewaSigningFails(t *testing.T) {
	h := newHarness()
	h.esewa.signErr = errors.New("signing service down")

	outcome, err := h.coord.Checkout(context.Background(), validRequest(models.PaymentESewa))

	assert.ErrorIs(t, err, apperrors.ErrGateway)
	require.NotNil(t, outcome)
	assert.NotEmpty(t, outcome.OrderID, "order exists and stays pending")
	assert.Nil(t, outcome.Form)
	assert.Len(t, h.orders.drafts, 1)
	assert.Equal(t, 1, h.esewa.signed, "no retry")
}

func TestCheckout_Khalti(t *testing.T) {
	h := newHarness()

	outcome, err := h.coord.Checkout(context.Background(), validRequest(models.PaymentKhalti))
	require.NoError(t, err)

	assert.Equal(t, NextRedirect, outcome.Next)
	assert.Equal(t, "https://pay.khalti.com/?pidx=p1", outcome.PaymentURL)

	require.Len(t, h.khalti.calls, 1)
	call := h.khalti.calls[0]
	assert.Equal(t, 100.0, call.Amount)
	assert.Equal(t, outcome.OrderID, call.OrderID)
	assert.Equal(t, "sita@example.com", call.Email)
}

func TestCheckout_KhaltiNoURL(t *testing.T) {
	h := newHarness()
	h.khalti.resp = &payment.InitiateResponse{Pidx: "p1"}

	outcome, err := h.coord.Checkout(context.Background(), validRequest(models.PaymentKhalti))

	assert.ErrorIs(t, err, apperrors.ErrGateway)
	assert.NotEmpty(t, outcome.OrderID)
	assert.Empty(t, outcome.PaymentURL)
}

func TestCheckout_KhaltiFails(t *testing.T) {
	h := newHarness()
	h.khalti.resp = nil
	h.khalti.err = apperrors.NewGatewayError("Khalti initiation failed")

	_, err := h.coord.Checkout(context.Background(), validRequest(models.PaymentKhalti))
	assert.ErrorIs(t, err, apperrors.ErrGateway)
	assert.Len(t, h.khalti.calls, 1)
}

func TestCheckout_OrderStoreFailsNoGatewayCall(t *testing.T) {
	h := newHarness()
	h.orders.err = apperrors.NewPersistenceError("Failed to place order")

	outcome, err := h.coord.Checkout(context.Background(), validRequest(models.PaymentESewa))

	assert.Nil(t, outcome)
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
	assert.Zero(t, h.esewa.signed)
}

func TestCheckout_InvalidRequestNeverPersists(t *testing.T) {
	h := newHarness()
	req := validRequest(models.PaymentCOD)
	req.Phone = ""

	_, err := h.coord.Checkout(context.Background(), req)

	assert.ErrorIs(t, err, apperrors.ErrValidation)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "phone", verr.Fields[0].Field)
	assert.Empty(t, h.orders.drafts)
}

func TestCheckout_RejectsNonPositiveQuantity(t *testing.T) {
	for _, qty := range []int{0, -5} {
		h := newHarness()
		req := validRequest(models.PaymentCOD)
		req.Cart = NewCart(CartItem{ProductID: "prd-ssd", Name: "SSD 1TB", Price: 50, Quantity: qty})

		outcome, err := h.coord.Checkout(context.Background(), req)

		assert.Nil(t, outcome)
		require.ErrorIs(t, err, apperrors.ErrValidation)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "cart[0].quantity", verr.Fields[0].Field)
		assert.Equal(t, "gte", verr.Fields[0].Rule)
		assert.Empty(t, h.orders.drafts)
	}
}
