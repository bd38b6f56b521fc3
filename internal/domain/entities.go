package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "Pending"
	OrderPaid      OrderStatus = "Paid"
	OrderCompleted OrderStatus = "Completed"
	OrderCanceled  OrderStatus = "Canceled"
)

// Event is a catalog entry as the storefront sees it.
type Event struct {
	EventID   string          `json:"event_id"`
	Title     string          `json:"title"`
	BasePrice decimal.Decimal `json:"base_price"`
	ImageURL  string          `json:"image_url"`
	Venue     string          `json:"venue"`
	Category  string          `json:"category"`
	Date      time.Time       `json:"date"`
}

// LineItem carries the price snapshot taken when the event was first added.
type LineItem struct {
	EventID   string          `json:"event_id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageURL  string          `json:"image_url,omitempty"`
	Quantity  int             `json:"quantity"`
}

func (i LineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the single mutable cart of an owner. Version is zero until the
// cart is first persisted and grows by one on every save.
type Cart struct {
	OwnerID   string
	Items     []LineItem
	PromoCode string
	Discount  decimal.Decimal
	Version   int64
	UpdatedAt time.Time
}

type Order struct {
	ID            uuid.UUID       `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Items         []LineItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PromoCodeUsed string          `json:"promo_code_used,omitempty"`
	Discount      decimal.Decimal `json:"discount"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

type OutboxMessage struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	DedupeKey     string
	CreatedAt     time.Time
	PublishedAt   *time.Time
}
