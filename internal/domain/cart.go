package domain

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// Pricer is the subset of the pricing engine a cart needs to keep its
// cached discount in line with its items.
type Pricer interface {
	Subtotal(items []LineItem) decimal.Decimal
	Discount(subtotal decimal.Decimal, code string) (decimal.Decimal, bool)
}

// MaxLineQuantity caps the tickets held on a single cart line. It fits the
// INT4 quantity column of the order_items table.
const MaxLineQuantity = math.MaxInt32

func NewCart(ownerID string) *Cart {
	return &Cart{
		OwnerID:  ownerID,
		Items:    []LineItem{},
		Discount: decimal.Zero,
	}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// TotalCount is the number of tickets in the cart, summed over lines.
func (c *Cart) TotalCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) indexOf(eventID string) int {
	for i := range c.Items {
		if c.Items[i].EventID == eventID {
			return i
		}
	}
	return -1
}

// AddItem sums quantity into the existing line for the event, keeping the
// first snapshot, or appends a new line priced from ev.
func (c *Cart) AddItem(ev Event, quantity int) error {
	if quantity <= 0 {
		return errors.Wrapf(ErrInvalidInput, "quantity must be positive, got %d", quantity)
	}
	if quantity > MaxLineQuantity {
		return errors.Wrapf(ErrInvalidInput, "quantity %d exceeds %d", quantity, MaxLineQuantity)
	}
	if i := c.indexOf(ev.EventID); i >= 0 {
		if quantity > MaxLineQuantity-c.Items[i].Quantity {
			return errors.Wrapf(ErrInvalidInput, "event %s would exceed %d tickets", ev.EventID, MaxLineQuantity)
		}
		c.Items[i].Quantity += quantity
		return nil
	}
	c.Items = append(c.Items, LineItem{
		EventID:   ev.EventID,
		Title:     ev.Title,
		UnitPrice: ev.BasePrice,
		ImageURL:  ev.ImageURL,
		Quantity:  quantity,
	})
	return nil
}

// RemoveItem drops the line when removeAll is set or only one ticket is
// left, otherwise it takes exactly one ticket off.
func (c *Cart) RemoveItem(eventID string, removeAll bool) error {
	i := c.indexOf(eventID)
	if i < 0 {
		return errors.Wrapf(ErrNotFound, "event %s is not in the cart", eventID)
	}
	if removeAll || c.Items[i].Quantity <= 1 {
		items := make([]LineItem, 0, len(c.Items)-1)
		items = append(items, c.Items[:i]...)
		c.Items = append(items, c.Items[i+1:]...)
		return nil
	}
	c.Items[i].Quantity--
	return nil
}

func (c *Cart) ClearPromo() {
	c.PromoCode = ""
	c.Discount = decimal.Zero
}

// Clear empties the cart in place after checkout. The record itself stays.
func (c *Cart) Clear() {
	c.Items = []LineItem{}
	c.ClearPromo()
}

// Reprice recomputes the cached discount from the current items. A promo
// code the pricer no longer recognizes is dropped.
func (c *Cart) Reprice(p Pricer) {
	if c.PromoCode == "" {
		c.Discount = decimal.Zero
		return
	}
	discount, ok := p.Discount(p.Subtotal(c.Items), c.PromoCode)
	if !ok {
		c.ClearPromo()
		return
	}
	c.Discount = discount
}

func (c *Cart) Clone() *Cart {
	out := *c
	out.Items = CloneItems(c.Items)
	return &out
}

func CloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
