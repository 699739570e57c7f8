package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"github.com/vaidashi/storefront-api/internal/config"
)

// SignedFieldNames lists the form fields covered by the signature, in signing order
const SignedFieldNames = "total_amount,transaction_uuid,product_code"

var ErrMissingSigningField = errors.New("total amount, transaction uuid and product code are required")

// Signer produces eSewa request signatures
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// SignedMessage is the exact string the signature is computed over
func SignedMessage(totalAmount, transactionUUID, productCode string) string {
	return fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s", totalAmount, transactionUUID, productCode)
}

// Sign returns base64(HMAC-SHA256(secret, message))
func (s *Signer) Sign(totalAmount, transactionUUID, productCode string) (string, error) {
	if totalAmount == "" || transactionUUID == "" || productCode == "" {
		return "", ErrMissingSigningField
	}
	if len(s.secret) == 0 {
		return "", errors.New("signing key is not configured")
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(SignedMessage(totalAmount, transactionUUID, productCode)))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// FormatAmount renders an amount the way it appears in the form and the
// signed message: no trailing zeros, no exponent.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

// FormField is one hidden input of the gateway form
type FormField struct {
	Name  string
	Value string
}

// Form is a POST to an external processor
type Form struct {
	Action string
	Fields []FormField
}

// Get returns the value of the named field
func (f Form) Get(name string) string {
	for _, field := range f.Fields {
		if field.Name == name {
			return field.Value
		}
	}
	return ""
}

// Values returns the fields as a map, for JSON responses
func (f Form) Values() map[string]string {
	values := make(map[string]string, len(f.Fields))
	for _, field := range f.Fields {
		values[field.Name] = field.Value
	}
	return values
}

// ESewa builds signed redirect forms for the eSewa ePay v2 endpoint
type ESewa struct {
	formURL     string
	productCode string
	signer      *Signer
}

func NewESewa(cfg config.ESewaConfig) *ESewa {
	return &ESewa{
		formURL:     cfg.FormURL,
		productCode: cfg.ProductCode,
		signer:      NewSigner(cfg.SecretKey),
	}
}

// ProductCode is the merchant code sent with every payment
func (e *ESewa) ProductCode() string {
	return e.productCode
}

func (e *ESewa) Sign(totalAmount, transactionUUID, productCode string) (string, error) {
	return e.signer.Sign(totalAmount, transactionUUID, productCode)
}

// BuildForm is deterministic: the same inputs always give the same form.
// Tax and charges are always zero; the customer returns to origin.
func (e *ESewa) BuildForm(amount float64, orderID, signature, origin string) Form {
	total := FormatAmount(amount)

	return Form{
		Action: e.formURL,
		Fields: []FormField{
			{Name: "amount", Value: total},
			{Name: "tax_amount", Value: "0"},
			{Name: "total_amount", Value: total},
			{Name: "transaction_uuid", Value: orderID},
			{Name: "product_code", Value: e.productCode},
			{Name: "product_service_charge", Value: "0"},
			{Name: "product_delivery_charge", Value: "0"},
			{Name: "success_url", Value: origin + "/order-success"},
			{Name: "failure_url", Value: origin + "/"},
			{Name: "signed_field_names", Value: SignedFieldNames},
			{Name: "signature", Value: signature},
		},
	}
}

var autoSubmitTmpl = template.Must(template.New("autosubmit").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Redirecting to payment</title></head>
<body onload="document.forms[0].submit()">
<form method="POST" action="{{.Action}}">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<noscript><button type="submit">Continue to payment</button></noscript>
</form>
</body>
</html>
`))

// RenderAutoSubmit writes a page that posts form as soon as it loads
func RenderAutoSubmit(w io.Writer, form Form) error {
	return autoSubmitTmpl.Execute(w, form)
}
