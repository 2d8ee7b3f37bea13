package payment

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"github.com/vasiliy-maslov/livestockmart/internal/config"
	"github.com/vasiliy-maslov/livestockmart/internal/order"
)

const upiCurrency = "INR"

type UPI struct {
	vpa       string
	payeeName string
}

// NewUPI returns nil when no VPA is configured.
func NewUPI(cfg config.UPIConfig) *UPI {
	if cfg.VPA == "" {
		return nil
	}
	return &UPI{vpa: cfg.VPA, payeeName: cfg.PayeeName}
}

// Link builds a upi://pay deep link understood by UPI apps.
func (u *UPI) Link(reference string, amount float64, note string) string {
	q := url.Values{}
	q.Set("pa", u.vpa)
	q.Set("pn", u.payeeName)
	q.Set("am", decimal.NewFromFloat(amount).StringFixed(2))
	q.Set("cu", upiCurrency)
	q.Set("tr", reference)
	if note != "" {
		q.Set("tn", note)
	}
	// UPI apps expect %20 rather than + for spaces.
	return "upi://pay?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}

// CreateRequest renders the deep link as a PNG QR code data URI.
func (u *UPI) CreateRequest(orderID uuid.UUID, amount float64) (*Request, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	ref, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("payment: failed to generate upi reference: %w", err)
	}
	reference := "LM" + strings.ToUpper(strings.ReplaceAll(ref.String(), "-", "")[:16])

	note := "LivestockMart order"
	if orderID != uuid.Nil {
		note = "LivestockMart order " + orderID.String()[:8]
	}
	link := u.Link(reference, amount, note)

	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("payment: failed to render upi qr code: %w", err)
	}

	return &Request{
		Method:    order.PaymentUPI,
		Reference: reference,
		Amount:    amount,
		Currency:  strings.ToLower(upiCurrency),
		UPILink:   link,
		QRCode:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}
