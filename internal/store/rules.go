package store

import (
	"fmt"
	"math"
	"time"

	"github.com/safar/go-order-store/internal/models"
	"github.com/shopspring/decimal"
)

const (
	DefaultAllocationType = models.TransactionTypeSold
	ReorderLimit          = 100
	OutflowWindowDays     = 30
	MaxOrderID            = math.MaxInt32
)

// NormalizeDiscount converts a percentage (any value above 1) into a
// fraction. Fractions pass through unchanged.
func NormalizeDiscount(discount float64) float64 {
	if discount > 1 {
		return discount / 100
	}
	return discount
}

// AllocationType resolves the ledger type code used for allocations.
func AllocationType(code int) int {
	if code == 0 {
		return DefaultAllocationType
	}
	return code
}

// PrepareItems validates the request items and returns copies with their
// discounts normalized. Nothing is written when it fails.
func PrepareItems(items []models.LineItem) ([]models.LineItem, error) {
	prepared := make([]models.LineItem, 0, len(items))
	for i, item := range items {
		if item.ProductID <= 0 {
			return nil, fmt.Errorf("item %d: product id %d: %w", i, item.ProductID, ErrInvalidLineItem)
		}
		if !finite(item.Quantity) || item.Quantity == 0 {
			return nil, fmt.Errorf("item %d: quantity %v: %w", i, item.Quantity, ErrInvalidLineItem)
		}
		if item.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("item %d: unit price %s: %w", i, item.UnitPrice, ErrInvalidLineItem)
		}
		if !finite(item.Discount) || item.Discount < 0 || item.Discount > 100 {
			return nil, fmt.Errorf("item %d: discount %v: %w", i, item.Discount, ErrInvalidLineItem)
		}

		item.Discount = NormalizeDiscount(item.Discount)
		prepared = append(prepared, item)
	}
	return prepared, nil
}

// AllocationQuantity is the signed ledger quantity consuming q units.
func AllocationQuantity(q float64) float64 {
	return -math.Abs(q)
}

func CheckOrderID(id int64) error {
	if id <= 0 || id > MaxOrderID {
		return fmt.Errorf("allocated id %d: %w", id, ErrIdentifierOverflow)
	}
	return nil
}

// LineRevenue is unitPrice × quantity × (1 − discount), unrounded.
func LineRevenue(unitPrice decimal.Decimal, quantity, discount float64) decimal.Decimal {
	return unitPrice.
		Mul(decimal.NewFromFloat(quantity)).
		Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(discount)))
}

// RoundMoney rounds a summed amount to cents, half away from zero.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// DayUTC truncates t to midnight of its UTC calendar day.
func DayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// NeedsReorder reports whether derived stock is missing or below target.
func NeedsReorder(onHand *float64, targetLevel int64) bool {
	return onHand == nil || *onHand < float64(targetLevel)
}

// SuggestedQuantity tops stock up to the target level, never ordering less
// than the product's minimum reorder quantity.
func SuggestedQuantity(onHand *float64, targetLevel, minimumReorder int64) float64 {
	var current float64
	if onHand != nil {
		current = *onHand
	}
	return math.Max(float64(targetLevel)-current, float64(minimumReorder))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
