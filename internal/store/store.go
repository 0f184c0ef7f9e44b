package store

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/safar/go-order-store/internal/models"
)

// Provider is the data-access contract implemented by every backend. A
// process selects one implementation at startup and keeps it.
//
// Absent orders are reported as a nil order or false, never as an error.
type Provider interface {
	GetOrderWithLines(ctx context.Context, orderID int64) (*models.Order, error)
	GetCustomerOrderHistory(ctx context.Context, customerID int64, pageSize int) ([]models.OrderHistoryRow, error)
	SearchProducts(ctx context.Context, query string, pageSize int) ([]models.ProductSearchRow, error)
	CreateOrderWithAllocation(ctx context.Context, req models.CreateOrderRequest) (int64, error)
	GetDailySales(ctx context.Context, from, to time.Time) ([]models.SalesByDay, error)
	GetTopProducts(ctx context.Context, from, to time.Time, topN int) ([]models.TopProductRow, error)
	GetReorderSuggestions(ctx context.Context) ([]models.ReorderSuggestionRow, error)
	BumpOrderLineQuantity(ctx context.Context, lineOrProductID int64, delta float64) (int64, error)
	DeleteOrder(ctx context.Context, orderID int64) (bool, error)
}

var (
	ErrInvalidLineItem    = errors.New("invalid line item")
	ErrIdentifierOverflow = errors.New("order identifier overflow")
	ErrProductNotFound    = errors.New("product not found")
)

type Options struct {
	DeallocationType int
	Now              func() time.Time
	Logger           *log.Logger
}

func DefaultOptions() Options {
	return Options{
		DeallocationType: models.TransactionTypePurchased,
		Now:              time.Now,
		Logger:           log.Default(),
	}
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.DeallocationType == 0 {
		o.DeallocationType = def.DeallocationType
	}
	if o.Now == nil {
		o.Now = def.Now
	}
	if o.Logger == nil {
		o.Logger = def.Logger
	}
	return o
}

// UTCNow returns the clock reading in UTC truncated to microseconds, the
// finest precision every backend keeps.
func (o Options) UTCNow() time.Time {
	return o.Now().UTC().Truncate(time.Microsecond)
}

// OutflowSince is the start of the trailing 30-day outflow window.
func (o Options) OutflowSince() time.Time {
	return o.UTCNow().AddDate(0, 0, -OutflowWindowDays)
}
