package domain

import (
	"fmt"
	"time"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// UnlimitedStock marks a line whose product came without a stock figure. No
// upper clamp is applied to it.
const UnlimitedStock = -1

// MaxLines caps the number of distinct products in one cart.
const MaxLines = 50

// Product is what the catalog knows about an item at the time it is added.
type Product struct {
	ID             string
	Name           string
	UnitPrice      int64
	ImageRef       string
	AvailableStock int
}

// Cart represents a shopping cart. Lines keep insertion order.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Lines     []CartLine `json:"lines"`
	Currency  string     `json:"currency"`
	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// CartLine is a single product entry in the cart. There is at most one line
// per ProductID.
type CartLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPrice      int64  `json:"unit_price"`
	ImageRef       string `json:"image_ref,omitempty"`
	Quantity       int    `json:"quantity"`
	AvailableStock int    `json:"available_stock"`
}

// Subtotal is quantity × unit price for the line.
func (l CartLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// NewCart returns an empty cart for userID that expires after ttl.
func NewCart(id, userID, currency string, now time.Time, ttl time.Duration) *Cart {
	return &Cart{
		ID:        id,
		UserID:    userID,
		Lines:     []CartLine{},
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// TotalPrice is recomputed from the lines on every call.
func (c *Cart) TotalPrice() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.Subtotal()
	}
	return total
}

// LineCount returns the number of distinct lines.
func (c *Cart) LineCount() int {
	return len(c.Lines)
}

// ItemCount returns the sum of all line quantities.
func (c *Cart) ItemCount() int {
	var count int
	for _, line := range c.Lines {
		count += line.Quantity
	}
	return count
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Line returns the line for productID.
func (c *Cart) Line(productID string) (CartLine, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.Lines[i], true
	}
	return CartLine{}, false
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// AddOrMergeLine adds qty of p to the cart. An existing line for the same
// product is merged into and its name, price, image and stock snapshot are
// refreshed from p. The resulting quantity is clamped to [1, stock].
func (c *Cart) AddOrMergeLine(p Product, qty int) (*Warning, error) {
	if p.ID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if qty < 1 {
		return nil, apperrors.InvalidInput("quantity must be at least 1")
	}
	if p.UnitPrice < 0 {
		return nil, apperrors.InvalidInput("unit price must not be negative")
	}
	if p.AvailableStock < UnlimitedStock {
		return nil, apperrors.InvalidInput("available stock must not be negative")
	}
	if p.AvailableStock == 0 {
		return nil, apperrors.OutOfStock(p.ID)
	}

	i := c.indexOf(p.ID)
	if i < 0 && len(c.Lines) >= MaxLines {
		return nil, apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d products", MaxLines))
	}
	if i < 0 {
		c.Lines = append(c.Lines, CartLine{ProductID: p.ID})
		i = len(c.Lines) - 1
	}

	line := &c.Lines[i]
	line.Name = p.Name
	line.UnitPrice = p.UnitPrice
	line.ImageRef = p.ImageRef
	line.AvailableStock = p.AvailableStock

	qty, warning := ClampQuantity(line.Quantity, qty, line.AvailableStock)
	line.Quantity = qty
	return warning.forProduct(p.ID), nil
}

// SetLineQuantity sets the quantity of an existing line. Values above the
// stock snapshot are clamped with a warning; values below 1 become 1.
func (c *Cart) SetLineQuantity(productID string, qty int) (*Warning, error) {
	return c.adjust(productID, func(line *CartLine) (int, *Warning) {
		return ClampQuantity(0, qty, line.AvailableStock)
	})
}

// IncrementLine adds one to a line. Every attempt past the stock snapshot
// returns a warning.
func (c *Cart) IncrementLine(productID string) (*Warning, error) {
	return c.adjust(productID, func(line *CartLine) (int, *Warning) {
		return ClampQuantity(line.Quantity, 1, line.AvailableStock)
	})
}

// DecrementLine removes one from a line. It never goes below 1; use
// RemoveLine to drop the line.
func (c *Cart) DecrementLine(productID string) (*Warning, error) {
	return c.adjust(productID, func(line *CartLine) (int, *Warning) {
		return ClampQuantity(line.Quantity, -1, line.AvailableStock)
	})
}

func (c *Cart) adjust(productID string, fn func(*CartLine) (int, *Warning)) (*Warning, error) {
	i := c.indexOf(productID)
	if i < 0 {
		return nil, apperrors.NotFound("cart line", productID)
	}
	qty, warning := fn(&c.Lines[i])
	c.Lines[i].Quantity = qty
	return warning.forProduct(productID), nil
}

// RemoveLine deletes the line for productID and reports whether one existed.
// Removing an absent line is a no-op.
func (c *Cart) RemoveLine(productID string) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	return true
}

// Clear drops every line.
func (c *Cart) Clear() {
	c.Lines = []CartLine{}
}

// Touch bumps UpdatedAt and pushes the expiry out by ttl.
func (c *Cart) Touch(now time.Time, ttl time.Duration) {
	c.UpdatedAt = now
	c.ExpiresAt = now.Add(ttl)
}

// Clone returns a deep copy of the cart.
func (c *Cart) Clone() *Cart {
	out := *c
	out.Lines = make([]CartLine, len(c.Lines))
	copy(out.Lines, c.Lines)
	return &out
}
