package legacy

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/safar/go-order-store/internal/config"
	"github.com/safar/go-order-store/internal/database"
	"github.com/safar/go-order-store/internal/models"
	"github.com/safar/go-order-store/internal/store"
	"github.com/safar/go-order-store/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sqliteIdentity = "SELECT last_insert_rowid()"

// setupTestDB opens a fresh SQLite file with the legacy schema. SQLite
// accepts the bracketed identifiers and ? markers of the production engine.
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.NewLegacyConnection(&config.LegacyConfig{
		Driver:       "sqlite3",
		DSN:          filepath.Join(t.TempDir(), "northwind.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
	})

	schema, err := os.ReadFile(filepath.Join("testdata", "schema.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	return db
}

type fixture struct {
	db       *sqlx.DB
	provider *Provider
}

func newFixture(t *testing.T) storetest.Fixture {
	db := setupTestDB(t)
	return &fixture{db: db, provider: New(db, sqliteIdentity, store.Options{})}
}

func (f *fixture) Provider() store.Provider { return f.provider }

func (f *fixture) SeedProduct(t *testing.T, p models.Product) {
	t.Helper()

	_, err := f.db.Exec(
		`INSERT INTO [Products] ([ID], [Product Name], [Category], [List Price], [Target Level], [Minimum Reorder Quantity], [Discontinued])
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Category, p.ListPrice.InexactFloat64(), p.TargetLevel, p.MinimumReorderQuantity, p.Discontinued)
	require.NoError(t, err)

	for _, tx := range p.Transactions {
		_, err := f.db.Exec(
			`INSERT INTO [Inventory Transactions]
			 ([Transaction Type], [Transaction Created Date], [Product ID], [Quantity], [Customer Order ID], [Comments])
			 VALUES (?, ?, ?, ?, ?, ?)`,
			tx.Type, tx.CreatedAt.UTC(), p.ID, tx.Quantity, tx.OrderID, tx.Comment)
		require.NoError(t, err)
	}
}

func (f *fixture) Ledger(t *testing.T, productID int64) []models.InventoryTransaction {
	t.Helper()

	var rows []struct {
		Type      int            `db:"type"`
		CreatedAt time.Time      `db:"created_at"`
		Quantity  float64        `db:"quantity"`
		OrderID   sql.NullInt64  `db:"order_id"`
		Comment   sql.NullString `db:"comment"`
	}
	err := f.db.Select(&rows, `
		SELECT [Transaction Type] AS type, [Transaction Created Date] AS created_at, [Quantity] AS quantity,
		       [Customer Order ID] AS order_id, [Comments] AS comment
		FROM [Inventory Transactions]
		WHERE [Product ID] = ?
		ORDER BY [Transaction ID]`, productID)
	require.NoError(t, err)

	ledger := make([]models.InventoryTransaction, 0, len(rows))
	for _, r := range rows {
		entry := models.InventoryTransaction{
			Type:      r.Type,
			CreatedAt: r.CreatedAt,
			ProductID: productID,
			Quantity:  r.Quantity,
			Comment:   r.Comment.String,
		}
		if r.OrderID.Valid {
			id := r.OrderID.Int64
			entry.OrderID = &id
		}
		ledger = append(ledger, entry)
	}
	return ledger
}

func (f *fixture) SetOrderDate(t *testing.T, orderID int64, at time.Time) {
	t.Helper()
	_, err := f.db.Exec(`UPDATE [Orders] SET [Order Date] = ? WHERE [Order ID] = ?`, at.UTC(), orderID)
	require.NoError(t, err)
}

func TestProvider(t *testing.T) {
	storetest.Run(t, newFixture)
}

func TestCreateOrderIdentityOverflow(t *testing.T) {
	db := setupTestDB(t)
	f := &fixture{db: db, provider: New(db, "SELECT 2147483648", store.Options{})}
	f.SeedProduct(t, models.Product{ID: 1, Name: "Chai"})

	_, err := f.provider.CreateOrderWithAllocation(context.Background(), models.CreateOrderRequest{
		CustomerID: 1,
		Items:      []models.LineItem{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrIdentifierOverflow)

	var orders, lines int
	require.NoError(t, db.Get(&orders, `SELECT COUNT(*) FROM [Orders]`))
	require.NoError(t, db.Get(&lines, `SELECT COUNT(*) FROM [Order Details]`))
	assert.Zero(t, orders)
	assert.Zero(t, lines)
	assert.Empty(t, f.Ledger(t, 1))
}

func TestOrderDatesKeepWholeSeconds(t *testing.T) {
	db := setupTestDB(t)
	clock := time.Date(2024, time.May, 4, 13, 14, 15, 987654321, time.UTC)
	p := New(db, sqliteIdentity, store.Options{Now: func() time.Time { return clock }})

	id, err := p.CreateOrderWithAllocation(context.Background(), models.CreateOrderRequest{CustomerID: 3})
	require.NoError(t, err)

	order, err := p.GetOrderWithLines(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.True(t, clock.Truncate(time.Second).Equal(order.OrderDate), "order date %s", order.OrderDate)
}

func TestNullLineValuesReadAsZero(t *testing.T) {
	f := newFixture(t).(*fixture)
	f.SeedProduct(t, models.Product{ID: 1, Name: "Chai"})

	_, err := f.db.Exec(`INSERT INTO [Orders] ([Order ID], [Customer ID], [Order Date]) VALUES (?, ?, ?)`,
		50, 4, time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = f.db.Exec(`INSERT INTO [Order Details] ([Order ID], [Product ID], [Quantity], [Unit Price], [Discount]) VALUES (?, ?, ?, ?, ?)`,
		50, 1, 2, 10, nil)
	require.NoError(t, err)
	_, err = f.db.Exec(`INSERT INTO [Order Details] ([Order ID], [Product ID], [Quantity], [Unit Price], [Discount]) VALUES (?, ?, ?, ?, ?)`,
		50, 1, nil, 10, 0)
	require.NoError(t, err)

	history, err := f.provider.GetCustomerOrderHistory(context.Background(), 4, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "20", history[0].Total.String())
}
