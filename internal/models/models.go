package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID          int64           `json:"id"`
	CustomerID  int64           `json:"customer_id"`
	EmployeeID  int64           `json:"employee_id"`
	OrderDate   time.Time       `json:"order_date"`
	ShipperID   int64           `json:"shipper_id"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Lines       []OrderLine     `json:"lines"`
}

// OrderLine is identified by ID when the backend assigns line ids, otherwise
// by the (OrderID, ProductID) pair. ID is 0 in the latter case.
type OrderLine struct {
	ID          int64           `json:"id,omitempty"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    float64         `json:"quantity"`
	Discount    float64         `json:"discount"`
}

type LineItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  float64         `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  float64         `json:"discount"`
}

type CreateOrderRequest struct {
	CustomerID     int64           `json:"customer_id"`
	EmployeeID     int64           `json:"employee_id"`
	ShipperID      int64           `json:"shipper_id"`
	Freight        decimal.Decimal `json:"freight"`
	Items          []LineItem      `json:"items"`
	AllocationType int             `json:"allocation_type,omitempty"`
}

type Product struct {
	ID                     int64                  `json:"id"`
	Name                   string                 `json:"name"`
	Category               string                 `json:"category"`
	ListPrice              decimal.Decimal        `json:"list_price"`
	MinimumReorderQuantity int64                  `json:"minimum_reorder_quantity"`
	TargetLevel            int64                  `json:"target_level"`
	Discontinued           bool                   `json:"discontinued"`
	Transactions           []InventoryTransaction `json:"transactions,omitempty"`
}

// InventoryTransaction is one signed ledger entry. Negative quantities
// consume stock, positive ones replenish it.
type InventoryTransaction struct {
	Type      int       `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	ProductID int64     `json:"product_id"`
	Quantity  float64   `json:"quantity"`
	OrderID   *int64    `json:"order_id,omitempty"`
	Comment   string    `json:"comment"`
}

type OrderHistoryRow struct {
	OrderID   int64           `json:"order_id"`
	OrderDate time.Time       `json:"order_date"`
	Total     decimal.Decimal `json:"total"`
}

type ProductSearchRow struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	ListPrice decimal.Decimal `json:"list_price"`
}

type SalesByDay struct {
	Day     time.Time       `json:"day"`
	Revenue decimal.Decimal `json:"revenue"`
}

type TopProductRow struct {
	Rank        int             `json:"rank"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Category    string          `json:"category"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// ReorderSuggestionRow reports a product below its target level. OnHand is
// nil when the product has no ledger entries at all.
type ReorderSuggestionRow struct {
	ProductID              int64    `json:"product_id"`
	ProductName            string   `json:"product_name"`
	OnHand                 *float64 `json:"on_hand"`
	TargetLevel            int64    `json:"target_level"`
	MinimumReorderQuantity int64    `json:"minimum_reorder_quantity"`
	Outflow30d             float64  `json:"outflow_30d"`
	SuggestedQuantity      float64  `json:"suggested_quantity"`
}

const (
	TransactionTypePurchased = 1
	TransactionTypeSold      = 2
	TransactionTypeOnHold    = 3
	TransactionTypeWaste     = 4
)

const (
	AllocationComment   = "Allocated to customer order"
	DeallocationComment = "Allocation reversed: customer order deleted"
)
