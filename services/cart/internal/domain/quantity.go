package domain

import (
	"fmt"
	"math"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// WarningKind classifies a non-fatal condition raised by a cart mutation.
type WarningKind string

const (
	// WarningStockExceeded means a quantity was capped at the stock snapshot.
	WarningStockExceeded WarningKind = "stock_exceeded"
	// WarningQuantityLimit means a quantity was capped at MaxLineQuantity.
	WarningQuantityLimit WarningKind = "quantity_limit"
)

// MaxLineQuantity caps the quantity of a single line, whatever the stock.
const MaxLineQuantity = 1000

// Warning is returned alongside a successful mutation that had to adjust the
// caller's request.
type Warning struct {
	Kind      WarningKind `json:"kind"`
	ProductID string      `json:"product_id,omitempty"`
	Requested int         `json:"requested"`
	Applied   int         `json:"applied"`
	Message   string      `json:"message"`
}

// Err exposes the warning as an error wrapping ErrStockExceeded, or
// ErrInvalidInput for the per-line limit.
func (w *Warning) Err() error {
	if w == nil {
		return nil
	}
	if w.Kind == WarningQuantityLimit {
		return fmt.Errorf("%s: %w", w.Message, apperrors.ErrInvalidInput)
	}
	return fmt.Errorf("%s: %w", w.Message, apperrors.ErrStockExceeded)
}

func (w *Warning) forProduct(productID string) *Warning {
	if w == nil {
		return nil
	}
	w.ProductID = productID
	if w.Kind == WarningQuantityLimit {
		w.Message = fmt.Sprintf("at most %d of product %s per cart, quantity set to %d", MaxLineQuantity, productID, w.Applied)
		return w
	}
	w.Message = fmt.Sprintf("only %d of product %s in stock, quantity set to %d", w.Applied, productID, w.Applied)
	return w
}

// ClampQuantity applies delta to current and clamps the result to
// [1, min(available, MaxLineQuantity)]. available == UnlimitedStock is bounded
// by MaxLineQuantity only. A warning is returned whenever the upper bound was
// applied. The lower bound wins when available is below 1.
func ClampQuantity(current, delta, available int) (int, *Warning) {
	target := saturatingAdd(current, delta)

	limit, kind := MaxLineQuantity, WarningQuantityLimit
	if available != UnlimitedStock && available <= MaxLineQuantity {
		limit, kind = available, WarningStockExceeded
	}

	var warning *Warning
	next := target
	if next > limit {
		next = limit
		warning = &Warning{Kind: kind, Requested: target, Applied: limit}
	}
	if next < 1 {
		next = 1
		if warning != nil {
			warning.Applied = next
		}
	}
	return next, warning
}

func saturatingAdd(a, b int) int {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return math.MaxInt
	case b < 0 && a < math.MinInt-b:
		return math.MinInt
	}
	return a + b
}
