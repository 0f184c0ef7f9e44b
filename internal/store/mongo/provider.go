// Package mongo implements store.Provider on MongoDB.
//
// Orders embed their lines in orderDetails and products embed their ledger
// in inventoryTransactions. The store offers no multi-document transaction
// here, so order writes are applied step by step and undone with
// compensating updates when a later step fails. Callers observe the same
// all-or-nothing outcome as the SQL backends.
package mongo

import (
	"fmt"
	"time"

	"github.com/safar/go-order-store/internal/store"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	ordersCollection   = "orders"
	productsCollection = "products"
	countersCollection = "counters"

	orderCounterID = "orders"
)

type Provider struct {
	db   *mongo.Database
	opts store.Options
}

var _ store.Provider = (*Provider)(nil)

func New(db *mongo.Database, opts store.Options) *Provider {
	return &Provider{db: db, opts: opts.WithDefaults()}
}

func (p *Provider) orders() *mongo.Collection {
	return p.db.Collection(ordersCollection)
}

func (p *Provider) products() *mongo.Collection {
	return p.db.Collection(productsCollection)
}

func (p *Provider) counters() *mongo.Collection {
	return p.db.Collection(countersCollection)
}

type orderDoc struct {
	ID           int64     `bson:"_id"`
	CustomerID   int64     `bson:"customerId,omitempty"`
	EmployeeID   int64     `bson:"employeeId,omitempty"`
	OrderDate    time.Time `bson:"orderDate"`
	ShipperID    int64     `bson:"shipperId,omitempty"`
	ShippingFee  float64   `bson:"shippingFee"`
	OrderDetails []lineDoc `bson:"orderDetails"`
}

type lineDoc struct {
	ID        int64   `bson:"id,omitempty"`
	ProductID int64   `bson:"productId"`
	Quantity  float64 `bson:"quantity"`
	UnitPrice float64 `bson:"unitPrice"`
	Discount  float64 `bson:"discount"`
}

type ledgerDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	Type        int                `bson:"transactionType"`
	CreatedDate time.Time          `bson:"createdDate"`
	Quantity    float64            `bson:"quantity"`
	OrderID     *int64             `bson:"orderId,omitempty"`
	Comments    string             `bson:"comments"`
}

// revenueExpr is the discounted revenue of the line document at path,
// computed in Decimal128 so sums round the same way as the SQL backends.
func revenueExpr(path string) bson.D {
	return bson.D{{Key: "$multiply", Value: bson.A{
		toDecimal(ifNull(path+".unitPrice", 0)),
		toDecimal(ifNull(path+".quantity", 0)),
		bson.D{{Key: "$subtract", Value: bson.A{
			toDecimal(1),
			toDecimal(ifNull(path+".discount", 0)),
		}}},
	}}}
}

func toDecimal(expr any) bson.D {
	return bson.D{{Key: "$toDecimal", Value: expr}}
}

// money converts a summed Decimal128 revenue to cents.
func money(amount primitive.Decimal128) (decimal.Decimal, error) {
	coef, exp, err := amount.BigInt()
	if err != nil {
		return decimal.Zero, fmt.Errorf("convert amount %s: %w", amount, err)
	}
	return store.RoundMoney(decimal.NewFromBigInt(coef, int32(exp))), nil
}

func ifNull(path string, fallback any) bson.D {
	return bson.D{{Key: "$ifNull", Value: bson.A{path, fallback}}}
}
