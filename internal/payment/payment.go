package payment

import (
	"context"
	"errors"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/livestockmart/internal/order"
)

var (
	ErrNotConfigured     = errors.New("payment provider not configured")
	ErrInvalidAmount     = errors.New("payment amount must be positive")
	ErrUnsupportedMethod = errors.New("payment method does not need a payment request")
)

// Request is what the client needs to complete a payment.
type Request struct {
	Method       order.PaymentMethod `json:"method"`
	Reference    string              `json:"reference"`
	Amount       float64             `json:"amount"`
	Currency     string              `json:"currency"`
	ClientSecret string              `json:"clientSecret,omitempty"`
	UPILink      string              `json:"upiLink,omitempty"`
	QRCode       string              `json:"qrCode,omitempty"`
}

// minorUnits converts a rupee amount into paise.
func minorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

// Verifier routes verification to the provider that owns the payment method.
// Methods without a provider are never confirmed.
type Verifier struct {
	Card order.PaymentVerifier
	UPI  order.PaymentVerifier
}

func (v Verifier) VerifyPayment(ctx context.Context, userID uuid.UUID, method order.PaymentMethod, reference string, amount float64) (bool, error) {
	var target order.PaymentVerifier
	switch method {
	case order.PaymentCard:
		target = v.Card
	case order.PaymentUPI:
		target = v.UPI
	}
	if target == nil {
		return false, nil
	}
	return target.VerifyPayment(ctx, userID, method, reference, amount)
}
