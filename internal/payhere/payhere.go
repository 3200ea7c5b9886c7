// Package payhere implements the PayHere checkout hash, the notify-URL
// signature check and the status code mapping.
package payhere

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

const (
	SandboxCheckoutURL = "https://sandbox.payhere.lk/pay/checkout"
	LiveCheckoutURL    = "https://www.payhere.lk/pay/checkout"
)

var (
	ErrInvalidSignature = errors.New("invalid payhere signature")
	ErrUnknownStatus    = errors.New("unknown payhere status code")
)

type Status string

const (
	StatusCompleted   Status = "COMPLETED"
	StatusPending     Status = "PENDING"
	StatusCancelled   Status = "CANCELLED"
	StatusFailed      Status = "FAILED"
	StatusChargedBack Status = "CHARGEDBACK"
)

var statusCodes = map[string]Status{
	"2":  StatusCompleted,
	"0":  StatusPending,
	"-1": StatusCancelled,
	"-2": StatusFailed,
	"-3": StatusChargedBack,
}

// MapStatus converts a PayHere status_code into a payment status.
func MapStatus(code string) (Status, error) {
	s, ok := statusCodes[strings.TrimSpace(code)]
	if !ok {
		return "", ErrUnknownStatus
	}
	return s, nil
}

// FormatAmount renders amounts the way PayHere hashes them: two decimals,
// no thousands separator.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// CheckoutHash is the hash field of the checkout form.
func CheckoutHash(merchantID, orderID string, amount float64, currency, secret string) string {
	return md5Upper(merchantID + orderID + FormatAmount(amount) + currency + md5Upper(secret))
}

// Notification is the form posted by PayHere to the notify URL.
type Notification struct {
	MerchantID     string
	OrderID        string
	PaymentID      string
	Amount         string
	Currency       string
	StatusCode     string
	MD5Sig         string
	StatusMessage  string
	Method         string
	CardHolderName string
	CardNo         string
	CardExpiry     string
	Custom1        string
	Custom2        string
}

// ParseNotification reads the notify form fields.
func ParseNotification(form url.Values) Notification {
	return Notification{
		MerchantID:     form.Get("merchant_id"),
		OrderID:        form.Get("order_id"),
		PaymentID:      form.Get("payment_id"),
		Amount:         form.Get("payhere_amount"),
		Currency:       form.Get("payhere_currency"),
		StatusCode:     form.Get("status_code"),
		MD5Sig:         form.Get("md5sig"),
		StatusMessage:  form.Get("status_message"),
		Method:         form.Get("method"),
		CardHolderName: form.Get("card_holder_name"),
		CardNo:         form.Get("card_no"),
		CardExpiry:     form.Get("card_expiry"),
		Custom1:        form.Get("custom_1"),
		Custom2:        form.Get("custom_2"),
	}
}

// Signature recomputes md5sig from the notification fields.
func (n Notification) Signature(secret string) string {
	return md5Upper(n.MerchantID + n.OrderID + n.Amount + n.Currency + n.StatusCode + md5Upper(secret))
}

// Verify checks the merchant and the md5sig. An empty secret never verifies.
func (n Notification) Verify(merchantID, secret string) error {
	if secret == "" || merchantID == "" || n.MerchantID != merchantID {
		return ErrInvalidSignature
	}
	got := []byte(strings.ToUpper(strings.TrimSpace(n.MD5Sig)))
	want := []byte(n.Signature(secret))
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// AmountValue parses payhere_amount.
func (n Notification) AmountValue() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(n.Amount), 64)
}

// Customer is the payer block of the checkout form.
type Customer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	City      string
	Country   string
}

type Merchant struct {
	MerchantID string
	Secret     string
	Sandbox    bool
	ReturnURL  string
	CancelURL  string
	NotifyURL  string
}

// Checkout is what the browser needs to post to the hosted checkout page.
type Checkout struct {
	Action string            `json:"action"`
	Fields map[string]string `json:"fields"`
}

// NewCheckout builds the hosted checkout form for one order.
func (m Merchant) NewCheckout(orderID, items string, amount float64, currency string, c Customer, custom1, custom2 string) Checkout {
	action := LiveCheckoutURL
	if m.Sandbox {
		action = SandboxCheckoutURL
	}
	country := c.Country
	if country == "" {
		country = "Sri Lanka"
	}
	city := c.City
	if city == "" {
		city = "Colombo"
	}
	return Checkout{
		Action: action,
		Fields: map[string]string{
			"merchant_id": m.MerchantID,
			"return_url":  m.ReturnURL,
			"cancel_url":  m.CancelURL,
			"notify_url":  m.NotifyURL,
			"order_id":    orderID,
			"items":       items,
			"currency":    currency,
			"amount":      FormatAmount(amount),
			"first_name":  c.FirstName,
			"last_name":   c.LastName,
			"email":       c.Email,
			"phone":       c.Phone,
			"address":     c.Address,
			"city":        city,
			"country":     country,
			"hash":        CheckoutHash(m.MerchantID, orderID, amount, currency, m.Secret),
			"custom_1":    custom1,
			"custom_2":    custom2,
		},
	}
}
