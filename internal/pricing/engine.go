// Package pricing computes cart subtotals, promo discounts and totals. It
// holds no state besides the one recognized promo code and its rate.
package pricing

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/ticket-storefront/internal/domain"
)

const DefaultPromoCode = "FINAL"

// DefaultRate is the fraction of the subtotal taken off by the promo code.
var DefaultRate = decimal.RequireFromString("0.10")

// Discounts are kept to cents.
const moneyPlaces = 2

type Engine struct {
	code string
	rate decimal.Decimal
}

func NewEngine(code string, rate decimal.Decimal) (*Engine, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "promo code must not be empty")
	}
	if !rate.IsPositive() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "promo rate %s outside (0, 1]", rate)
	}
	return &Engine{code: code, rate: rate}, nil
}

func Default() *Engine {
	return &Engine{code: DefaultPromoCode, rate: DefaultRate}
}

// Code is the canonical form stored on carts and orders.
func (e *Engine) Code() string {
	return e.code
}

func (e *Engine) Recognizes(code string) bool {
	return code != "" && strings.ToUpper(code) == e.code
}

func (e *Engine) Subtotal(items []domain.LineItem) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	return subtotal
}

// Discount returns the amount taken off subtotal and whether code was
// recognized. Unrecognized codes yield zero. The amount is subtotal times
// the rate, rounded to cents half away from zero, so 0.005 becomes 0.01.
func (e *Engine) Discount(subtotal decimal.Decimal, code string) (decimal.Decimal, bool) {
	if !e.Recognizes(code) {
		return decimal.Zero, false
	}
	return subtotal.Mul(e.rate).Round(moneyPlaces), true
}

// Total never goes below zero.
func (e *Engine) Total(subtotal, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

type Quote struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
	Applied  bool
}

func (e *Engine) Quote(items []domain.LineItem, code string) Quote {
	subtotal := e.Subtotal(items)
	discount, ok := e.Discount(subtotal, code)
	return Quote{
		Subtotal: subtotal,
		Discount: discount,
		Total:    e.Total(subtotal, discount),
		Applied:  ok,
	}
}
