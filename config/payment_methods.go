package config

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PaymentMethod is a mobile payment channel confirmed manually by an operator
type PaymentMethod struct {
	Name       string
	MinAmount  int64
	MaxAmount  int64
	FeePercent decimal.Decimal
}

// Fee returns floor(amount * FeePercent / 100)
func (m *PaymentMethod) Fee(amount int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(m.FeePercent).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}

// Validate checks the method limits and fee
func (m *PaymentMethod) Validate() error {
	if m.MinAmount <= 0 || m.MaxAmount < m.MinAmount {
		return fmt.Errorf("invalid amount range %d-%d", m.MinAmount, m.MaxAmount)
	}
	if m.FeePercent.IsNegative() || m.FeePercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("fee percent %s must be in [0, 100)", m.FeePercent)
	}
	return nil
}

// DefaultPaymentMethods returns the supported mobile payment channels
func DefaultPaymentMethods() map[string]*PaymentMethod {
	d := decimal.RequireFromString
	return map[string]*PaymentMethod{
		"nagad":  {Name: "nagad", MinAmount: 1000, MaxAmount: 5000000, FeePercent: d("0")},
		"bkash":  {Name: "bkash", MinAmount: 1000, MaxAmount: 5000000, FeePercent: d("1.5")},
		"rocket": {Name: "rocket", MinAmount: 1000, MaxAmount: 5000000, FeePercent: d("1.0")},
		"upay":   {Name: "upay", MinAmount: 1000, MaxAmount: 5000000, FeePercent: d("0.5")},
	}
}
