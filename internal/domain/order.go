package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewOrder snapshots the cart into a paid order. The items are copied so
// later cart mutations never reach the order.
func NewOrder(cart *Cart, subtotal, total decimal.Decimal, now time.Time) Order {
	return Order{
		ID:            uuid.New(),
		OwnerID:       cart.OwnerID,
		Items:         CloneItems(cart.Items),
		Subtotal:      subtotal,
		TotalAmount:   total,
		PromoCodeUsed: cart.PromoCode,
		Discount:      cart.Discount,
		Status:        OrderPaid,
		CreatedAt:     now,
	}
}

// ItemCount is the number of distinct lines in the order.
func (o Order) ItemCount() int {
	return len(o.Items)
}

// OrderCreated is the integration event published for every checkout.
type OrderCreated struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OwnerID     string          `json:"owner_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Discount    decimal.Decimal `json:"discount"`
	PromoCode   string          `json:"promo_code,omitempty"`
	ItemCount   int             `json:"items_count"`
	Tickets     int             `json:"tickets"`
	CreatedAt   time.Time       `json:"created_at"`
}

func NewOrderCreated(o Order) OrderCreated {
	tickets := 0
	for _, item := range o.Items {
		tickets += item.Quantity
	}
	return OrderCreated{
		OrderID:     o.ID,
		OwnerID:     o.OwnerID,
		TotalAmount: o.TotalAmount,
		Discount:    o.Discount,
		PromoCode:   o.PromoCodeUsed,
		ItemCount:   o.ItemCount(),
		Tickets:     tickets,
		CreatedAt:   o.CreatedAt,
	}
}
