package warehouse

import (
	"fmt"

	"itdesk.org/internal/apperr"
)

// MovementType is the kind of stock change.
type MovementType string

const (
	MovementIn     MovementType = "STOCK_IN"
	MovementOut    MovementType = "STOCK_OUT"
	MovementAdjust MovementType = "ADJUSTMENT"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjust:
		return true
	}
	return false
}

// Outcome is the result of applying one movement to a stock counter.
// Quantity is what the movement row records: the requested amount for
// IN/OUT and the absolute difference for ADJUSTMENT.
type Outcome struct {
	Previous int
	New      int
	Quantity int
}

// Apply computes the new stock level. Stock never goes negative.
func Apply(current int, kind MovementType, qty int) (Outcome, error) {
	if current < 0 {
		return Outcome{}, fmt.Errorf("%w: stored stock %d is negative", apperr.ErrInvalidState, current)
	}
	switch kind {
	case MovementIn:
		if qty < 1 {
			return Outcome{}, apperr.FieldError("quantity", "must be at least 1")
		}
		return Outcome{Previous: current, New: current + qty, Quantity: qty}, nil
	case MovementOut:
		if qty < 1 {
			return Outcome{}, apperr.FieldError("quantity", "must be at least 1")
		}
		if qty > current {
			return Outcome{}, fmt.Errorf("%w: insufficient stock available (have %d, requested %d)", apperr.ErrInvalidState, current, qty)
		}
		return Outcome{Previous: current, New: current - qty, Quantity: qty}, nil
	case MovementAdjust:
		if qty < 0 {
			return Outcome{}, apperr.FieldError("quantity", "must not be negative")
		}
		diff := qty - current
		if diff < 0 {
			diff = -diff
		}
		return Outcome{Previous: current, New: qty, Quantity: diff}, nil
	default:
		return Outcome{}, apperr.FieldError("type", "must be one of STOCK_IN, STOCK_OUT, ADJUSTMENT")
	}
}

// IsLow reports whether stock has reached the alert threshold.
func IsLow(stock, minLevel int) bool {
	return stock <= minLevel
}

// LowStockMessage is the text stored on a low-stock alert.
func LowStockMessage(stock, minLevel int) string {
	return fmt.Sprintf("Stock level (%d) is at or below minimum threshold (%d)", stock, minLevel)
}

func (r StockRequest) validate() error {
	switch {
	case !r.Type.Valid():
		return apperr.FieldError("type", "must be one of STOCK_IN, STOCK_OUT, ADJUSTMENT")
	case r.Type == MovementAdjust && r.Quantity < 0:
		return apperr.FieldError("quantity", "must not be negative")
	case r.Type != MovementAdjust && r.Quantity < 1:
		return apperr.FieldError("quantity", "must be at least 1")
	}
	return nil
}
