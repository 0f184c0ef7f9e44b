// Package storetest holds the behavioural suite every store.Provider must
// pass. Backend packages call Run from their own tests with a factory that
// hands out a fixture over an empty store.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/safar/go-order-store/internal/models"
	"github.com/safar/go-order-store/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fixture gives the suite direct access to backend state that the Provider
// contract does not expose.
type Fixture interface {
	Provider() store.Provider
	// SeedProduct inserts p with its ledger entries.
	SeedProduct(t *testing.T, p models.Product)
	// Ledger returns the product's ledger entries in insertion order.
	Ledger(t *testing.T, productID int64) []models.InventoryTransaction
	SetOrderDate(t *testing.T, orderID int64, at time.Time)
}

// Product ids start well above any line id a test creates so that bumping
// by product id never hits the line-id branch first.
const (
	chai    int64 = 101
	chang   int64 = 102
	syrup   int64 = 103
	cajun   int64 = 104
	gumbo   int64 = 105
	ikura   int64 = 106
	tofu    int64 = 107
	missing int64 = 999
)

func Run(t *testing.T, newFixture func(t *testing.T) Fixture) {
	tests := []struct {
		name string
		fn   func(t *testing.T, f Fixture)
	}{
		{"CreateAndGetOrder", testCreateAndGetOrder},
		{"GetMissingOrder", testGetMissingOrder},
		{"AllocationLedger", testAllocationLedger},
		{"CustomAllocationType", testCustomAllocationType},
		{"InvalidLineItems", testInvalidLineItems},
		{"UnknownProductRollsBack", testUnknownProductRollsBack},
		{"EmptyOrder", testEmptyOrder},
		{"CustomerOrderHistory", testCustomerOrderHistory},
		{"SearchProducts", testSearchProducts},
		{"DailySales", testDailySales},
		{"TopProducts", testTopProducts},
		{"HalfCentRounding", testHalfCentRounding},
		{"ReorderSuggestions", testReorderSuggestions},
		{"BumpOrderLineQuantity", testBumpOrderLineQuantity},
		{"DeleteOrder", testDeleteOrder},
		{"DeleteMissingOrder", testDeleteMissingOrder},
		{"ConcurrentCreates", testConcurrentCreates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newFixture(t))
		})
	}
}

func seedCatalogue(t *testing.T, f Fixture) {
	t.Helper()
	f.SeedProduct(t, models.Product{ID: chai, Name: "Chai", Category: "Beverages", ListPrice: decimal.NewFromInt(18), TargetLevel: 40, MinimumReorderQuantity: 10,
		Transactions: []models.InventoryTransaction{stocked(100, 90)}})
	f.SeedProduct(t, models.Product{ID: chang, Name: "Chang", Category: "Beverages", ListPrice: decimal.NewFromInt(19), TargetLevel: 40, MinimumReorderQuantity: 10,
		Transactions: []models.InventoryTransaction{stocked(100, 90)}})
	f.SeedProduct(t, models.Product{ID: syrup, Name: "Aniseed Syrup", Category: "Condiments", ListPrice: decimal.NewFromInt(10), TargetLevel: 40, MinimumReorderQuantity: 10,
		Transactions: []models.InventoryTransaction{stocked(100, 90)}})
}

func stocked(quantity float64, daysAgo int) models.InventoryTransaction {
	return models.InventoryTransaction{
		Type:      models.TransactionTypePurchased,
		CreatedAt: time.Now().UTC().Truncate(time.Second).AddDate(0, 0, -daysAgo),
		Quantity:  quantity,
		Comment:   "Stock received",
	}
}

func item(productID int64, quantity float64, price string, discount float64) models.LineItem {
	return models.LineItem{
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: decimal.RequireFromString(price),
		Discount:  discount,
	}
}

func createOrder(t *testing.T, f Fixture, customerID int64, items ...models.LineItem) int64 {
	t.Helper()
	id, err := f.Provider().CreateOrderWithAllocation(context.Background(), models.CreateOrderRequest{
		CustomerID: customerID,
		EmployeeID: 1,
		ShipperID:  2,
		Freight:    decimal.RequireFromString("4.50"),
		Items:      items,
	})
	require.NoError(t, err)
	require.Positive(t, id)
	return id
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "expected %s, got %s", want, got)
}

func ledgerSum(entries []models.InventoryTransaction) float64 {
	var sum float64
	for _, e := range entries {
		sum += e.Quantity
	}
	return sum
}

func utcDate(year int, month time.Month, day, hour, minute, sec int) time.Time {
	return time.Date(year, month, day, hour, minute, sec, 0, time.UTC)
}

func testCreateAndGetOrder(t *testing.T, f Fixture) {
	ctx := context.Background()
	seedCatalogue(t, f)

	before := time.Now().UTC().Add(-time.Second)
	id := createOrder(t, f, 7, item(chai, 5, "18", 0), item(chang, 2, "19.50", 15))

	order, err := f.Provider().GetOrderWithLines(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, id, order.ID)
	assert.Equal(t, int64(7), order.CustomerID)
	assert.Equal(t, int64(1), order.EmployeeID)
	assert.Equal(t, int64(2), order.ShipperID)
	assertMoney(t, "4.50", order.ShippingFee)
	assert.False(t, order.OrderDate.Before(before.Truncate(time.Second)), "order date %s", order.OrderDate)

	require.Len(t, order.Lines, 2)
	assert.Equal(t, chai, order.Lines[0].ProductID)
	assert.Equal(t, "Chai", order.Lines[0].ProductName)
	assert.Equal(t, 5.0, order.Lines[0].Quantity)
	assertMoney(t, "18", order.Lines[0].UnitPrice)
	assert.Zero(t, order.Lines[0].Discount)

	assert.Equal(t, chang, order.Lines[1].ProductID)
	assert.Equal(t, "Chang", order.Lines[1].ProductName)
	assertMoney(t, "19.50", order.Lines[1].UnitPrice)
	assert.InDelta(t, 0.15, order.Lines[1].Discount, 1e-9)
	for _, l := range order.Lines {
		assert.Equal(t, id, l.OrderID)
	}
}

func testGetMissingOrder(t *testing.T, f Fixture) {
	order, err := f.Provider().GetOrderWithLines(context.Background(), 424242)
	require.NoError(t, err)
	assert.Nil(t, order)
}

func testAllocationLedger(t *testing.T, f Fixture) {
	seedCatalogue(t, f)

	id := createOrder(t, f, 7, item(chai, 5, "18", 0), item(chang, -3, "19", 0))

	chaiLedger := f.Ledger(t, chai)
	require.Len(t, chaiLedger, 2)
	alloc := chaiLedger[1]
	assert.Equal(t, -5.0, alloc.Quantity)
	assert.Equal(t, models.TransactionTypeSold, alloc.Type)
	assert.Equal(t, models.AllocationComment, alloc.Comment)
	require.NotNil(t, alloc.OrderID)
	assert.Equal(t, id, *alloc.OrderID)
	assert.Equal(t, 95.0, ledgerSum(chaiLedger))

	// The ledger always consumes the absolute quantity.
	changLedger := f.Ledger(t, chang)
	require.Len(t, changLedger, 2)
	assert.Equal(t, -3.0, changLedger[1].Quantity)

	assert.Len(t, f.Ledger(t, syrup), 1)
}

func testCustomAllocationType(t *testing.T, f Fixture) {
	seedCatalogue(t, f)

	_, err := f.Provider().CreateOrderWithAllocation(context.Background(), models.CreateOrderRequest{
		CustomerID:     7,
		Items:          []models.LineItem{item(chai, 1, "18", 0)},
		AllocationType: models.TransactionTypeOnHold,
	})
	require.NoError(t, err)

	ledger := f.Ledger(t, chai)
	require.Len(t, ledger, 2)
	assert.Equal(t, models.TransactionTypeOnHold, ledger[1].Type)
}

func testInvalidLineItems(t *testing.T, f Fixture) {
	ctx := context.Background()
	seedCatalogue(t, f)

	bad := []models.LineItem{
		item(0, 1, "18", 0),
		item(chai, 0, "18", 0),
		item(chai, 1, "-1", 0),
		item(chai, 1, "18", -0.5),
		item(chai, 1, "18", 150),
	}

	for _, it := range bad {
		_, err := f.Provider().CreateOrderWithAllocation(ctx, models.CreateOrderRequest{
			CustomerID: 9,
			Items:      []models.LineItem{item(chang, 1, "19", 0), it},
		})
		assert.ErrorIs(t, err, store.ErrInvalidLineItem)
	}

	history, err := f.Provider().GetCustomerOrderHistory(ctx, 9, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Len(t, f.Ledger(t, chang), 1)
}

func testUnknownProductRollsBack(t *testing.T, f Fixture) {
	ctx := context.Background()
	seedCatalogue(t, f)

	_, err := f.Provider().CreateOrderWithAllocation(ctx, models.CreateOrderRequest{
		CustomerID: 9,
		Items:      []models.LineItem{item(chai, 1, "18", 0), item(missing, 1, "1", 0)},
	})
	require.ErrorIs(t, err, store.ErrProductNotFound)

	history, err := f.Provider().GetCustomerOrderHistory(ctx, 9, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Len(t, f.Ledger(t, chai), 1)
}

func testEmptyOrder(t *testing.T, f Fixture) {
	ctx := context.Background()

	id := createOrder(t, f, 11)

	order, err := f.Provider().GetOrderWithLines(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Empty(t, order.Lines)

	history, err := f.Provider().GetCustomerOrderHistory(ctx, 11, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].OrderID)
	assertMoney(t, "0", history[0].Total)
}

func testCustomerOrderHistory(t *testing.T, f Fixture) {
	ctx := context.Background()
	seedCatalogue(t, f)

	oldest := createOrder(t, f, 7, item(chai, 2, "18", 0))
	newest := createOrder(t, f, 7, item(chang, 1, "19", 10), item(chai, 1, "18", 0))
	middle := createOrder(t, f, 7)
	other := createOrder(t, f, 8, item(chai, 1, "18", 0))

	f.SetOrderDate(t, oldest, utcDate(2024, time.January, 5, 9, 0, 0))
	f.SetOrderDate(t, newest, utcDate(2024, time.March, 1, 9, 0, 0))
	f.SetOrderDate(t, middle, utcDate(2024, time.February, 1, 9, 0, 0))
	f.SetOrderDate(t, other, utcDate(2024, time.April, 1, 9, 0, 0))

	history, err := f.Provider().GetCustomerOrderHistory(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, newest, history[0].OrderID)
	assert.True(t, utcDate(2024, time.March, 1, 9, 0, 0).Equal(history[0].OrderDate))
	assertMoney(t, "35.10", history[0].Total)
	assert.Equal(t, middle, history[1].OrderID)
	assertMoney(t, "0", history[1].Total)
	assert.Equal(t, oldest, history[2].OrderID)
	assertMoney(t, "36", history[2].Total)

	page, err := f.Provider().GetCustomerOrderHistory(ctx, 7, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, newest, page[0].OrderID)
	assert.Equal(t, middle, page[1].OrderID)

	none, err := f.Provider().GetCustomerOrderHistory(ctx, 12345, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testSearchProducts(t *testing.T, f Fixture) {
	ctx := context.Background()
	f.SeedProduct(t, models.Product{ID: chai, Name: "Chai", Category: "Beverages", ListPrice: decimal.NewFromInt(18)})
	f.SeedProduct(t, models.Product{ID: chang, Name: "Chang", Category: "Beverages", ListPrice: decimal.NewFromInt(19)})
	f.SeedProduct(t, models.Product{ID: syrup, Name: "CHAI Syrup", Category: "Condiments", ListPrice: decimal.NewFromInt(10)})
	f.SeedProduct(t, models.Product{ID: cajun, Name: "Chai Reserve", Category: "Beverages", ListPrice: decimal.NewFromInt(10), Discontinued: true})
	f.SeedProduct(t, models.Product{ID: gumbo, Name: "Gumbo 100% Mix", Category: "Condiments", ListPrice: decimal.NewFromInt(18)})

	found, err := f.Provider().SearchProducts(ctx, "chai", 0)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, syrup, found[0].ID)
	assert.Equal(t, "CHAI Syrup", found[0].Name)
	assert.Equal(t, "Condiments", found[0].Category)
	assertMoney(t, "10", found[0].ListPrice)
	assert.Equal(t, chai, found[1].ID)

	all, err := f.Provider().SearchProducts(ctx, "", 0)
	require.NoError(t, err)
	ids := make([]int64, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []int64{syrup, chai, gumbo, chang}, ids)

	page, err := f.Provider().SearchProducts(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	literal, err := f.Provider().SearchProducts(ctx, "100%", 0)
	require.NoError(t, err)
	require.Len(t, literal, 1)
	assert.Equal(t, gumbo, literal[0].ID)

	wildcard, err := f.Provider().SearchProducts(ctx, "C.a", 0)
	require.NoError(t, err)
	assert.Empty(t, wildcard)
}

// seedSales places four orders around a two-day window starting on
// 2024-03-01. The last one falls on the exclusive upper bound.
func seedSales(t *testing.T, f Fixture) (from, to time.Time) {
	seedCatalogue(t, f)

	a := createOrder(t, f, 7, item(chai, 2, "10", 0))
	b := createOrder(t, f, 7, item(chang, 1, "5.50", 10))
	c := createOrder(t, f, 8, item(chai, 1, "10", 0), item(syrup, 3, "10", 0))
	d := createOrder(t, f, 8, item(chang, 100, "10", 0))
	createOrder(t, f, 9)

	f.SetOrderDate(t, a, utcDate(2024, time.March, 1, 10, 0, 0))
	f.SetOrderDate(t, b, utcDate(2024, time.March, 1, 23, 59, 59))
	f.SetOrderDate(t, c, utcDate(2024, time.March, 2, 0, 0, 0))
	f.SetOrderDate(t, d, utcDate(2024, time.March, 3, 0, 0, 0))

	return utcDate(2024, time.March, 1, 0, 0, 0), utcDate(2024, time.March, 3, 0, 0, 0)
}

func testDailySales(t *testing.T, f Fixture) {
	from, to := seedSales(t, f)

	sales, err := f.Provider().GetDailySales(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, sales, 2)

	assert.True(t, utcDate(2024, time.March, 1, 0, 0, 0).Equal(sales[0].Day), "day %s", sales[0].Day)
	assertMoney(t, "24.95", sales[0].Revenue)
	assert.True(t, utcDate(2024, time.March, 2, 0, 0, 0).Equal(sales[1].Day), "day %s", sales[1].Day)
	assertMoney(t, "40", sales[1].Revenue)

	empty, err := f.Provider().GetDailySales(context.Background(), to.AddDate(1, 0, 0), to.AddDate(1, 0, 7))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testTopProducts(t *testing.T, f Fixture) {
	from, to := seedSales(t, f)

	top, err := f.Provider().GetTopProducts(context.Background(), from, to, 0)
	require.NoError(t, err)
	require.Len(t, top, 3)

	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, chai, top[0].ProductID)
	assert.Equal(t, "Chai", top[0].ProductName)
	assert.Equal(t, "Beverages", top[0].Category)
	assertMoney(t, "30", top[0].Revenue)

	assert.Equal(t, 2, top[1].Rank)
	assert.Equal(t, syrup, top[1].ProductID)
	assertMoney(t, "30", top[1].Revenue)

	assert.Equal(t, 3, top[2].Rank)
	assert.Equal(t, chang, top[2].ProductID)
	assertMoney(t, "4.95", top[2].Revenue)

	limited, err := f.Provider().GetTopProducts(context.Background(), from, to, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, syrup, limited[1].ProductID)
}

// A half-cent line total must round up everywhere: 0.15 × 3 × 0.9 = 0.405.
func testHalfCentRounding(t *testing.T, f Fixture) {
	ctx := context.Background()
	f.SeedProduct(t, models.Product{ID: chai, Name: "Chai", Category: "Beverages", ListPrice: decimal.RequireFromString("0.15")})

	id := createOrder(t, f, 7, item(chai, 3, "0.15", 10))
	f.SetOrderDate(t, id, utcDate(2024, time.May, 2, 12, 0, 0))

	history, err := f.Provider().GetCustomerOrderHistory(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assertMoney(t, "0.41", history[0].Total)

	from, to := utcDate(2024, time.May, 2, 0, 0, 0), utcDate(2024, time.May, 3, 0, 0, 0)

	sales, err := f.Provider().GetDailySales(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assertMoney(t, "0.41", sales[0].Revenue)

	top, err := f.Provider().GetTopProducts(ctx, from, to, 0)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assertMoney(t, "0.41", top[0].Revenue)
}

func testReorderSuggestions(t *testing.T, f Fixture) {
	f.SeedProduct(t, models.Product{ID: chai, Name: "Chai", TargetLevel: 50, MinimumReorderQuantity: 10,
		Transactions: []models.InventoryTransaction{stocked(20, 60), stocked(-5, 5)}})
	f.SeedProduct(t, models.Product{ID: chang, Name: "Chang", TargetLevel: 10, MinimumReorderQuantity: 10,
		Transactions: []models.InventoryTransaction{stocked(100, 60)}})
	f.SeedProduct(t, models.Product{ID: syrup, Name: "Aniseed Syrup", MinimumReorderQuantity: 5})
	f.SeedProduct(t, models.Product{ID: cajun, Name: "Cajun Seasoning", TargetLevel: 30, MinimumReorderQuantity: 40,
		Transactions: []models.InventoryTransaction{stocked(10, 90), stocked(-4, 60)}})
	f.SeedProduct(t, models.Product{ID: gumbo, Name: "Gumbo Mix", TargetLevel: 100, MinimumReorderQuantity: 10,
		Transactions: []models.InventoryTransaction{stocked(50, 90), stocked(-20, 2), stocked(-10, 10)}})
	// On hand exactly at target is not reordered; one unit below is.
	f.SeedProduct(t, models.Product{ID: ikura, Name: "Ikura", TargetLevel: 25, MinimumReorderQuantity: 1,
		Transactions: []models.InventoryTransaction{stocked(25, 90)}})
	f.SeedProduct(t, models.Product{ID: tofu, Name: "Tofu", TargetLevel: 25, MinimumReorderQuantity: 1,
		Transactions: []models.InventoryTransaction{stocked(24, 90)}})

	rows, err := f.Provider().GetReorderSuggestions(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for _, r := range rows {
		assert.NotEqual(t, ikura, r.ProductID, "product at target level suggested")
	}

	assert.Equal(t, gumbo, rows[0].ProductID)
	require.NotNil(t, rows[0].OnHand)
	assert.Equal(t, 20.0, *rows[0].OnHand)
	assert.Equal(t, 30.0, rows[0].Outflow30d)
	assert.Equal(t, 80.0, rows[0].SuggestedQuantity)

	assert.Equal(t, chai, rows[1].ProductID)
	assert.Equal(t, "Chai", rows[1].ProductName)
	require.NotNil(t, rows[1].OnHand)
	assert.Equal(t, 15.0, *rows[1].OnHand)
	assert.Equal(t, 5.0, rows[1].Outflow30d)
	assert.Equal(t, int64(50), rows[1].TargetLevel)
	assert.Equal(t, 35.0, rows[1].SuggestedQuantity)

	assert.Equal(t, syrup, rows[2].ProductID)
	assert.Nil(t, rows[2].OnHand)
	assert.Zero(t, rows[2].Outflow30d)
	assert.Equal(t, 5.0, rows[2].SuggestedQuantity)

	assert.Equal(t, cajun, rows[3].ProductID)
	require.NotNil(t, rows[3].OnHand)
	assert.Equal(t, 6.0, *rows[3].OnHand)
	assert.Zero(t, rows[3].Outflow30d)
	assert.Equal(t, 40.0, rows[3].SuggestedQuantity)

	assert.Equal(t, tofu, rows[4].ProductID)
	require.NotNil(t, rows[4].OnHand)
	assert.Equal(t, 24.0, *rows[4].OnHand)
	assert.Equal(t, 1.0, rows[4].SuggestedQuantity)
}

func testBumpOrderLineQuantity(t *testing.T, f Fixture) {
	ctx := context.Background()
	seedCatalogue(t, f)

	id := createOrder(t, f, 7, item(chai, 5, "18", 0), item(chang, 1, "19", 0))

	order, err := f.Provider().GetOrderWithLines(ctx, id)
	require.NoError(t, err)
	require.Len(t, order.Lines, 2)

	want := 5.0
	if lineID := order.Lines[0].ID; lineID != 0 {
		n, err := f.Provider().BumpOrderLineQuantity(ctx, lineID, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		want += 2
	}

	n, err := f.Provider().BumpOrderLineQuantity(ctx, chai, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	want--

	order, err = f.Provider().GetOrderWithLines(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, want, order.Lines[0].Quantity)
	assert.Equal(t, 1.0, order.Lines[1].Quantity)

	n, err = f.Provider().BumpOrderLineQuantity(ctx, missing, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testDeleteOrder(t *testing.T, f Fixture) {
	ctx := context.Background()
	seedCatalogue(t, f)

	keep := createOrder(t, f, 7, item(chai, 1, "18", 0))
	id := createOrder(t, f, 7, item(chai, 5, "18", 0), item(chang, 2, "19", 0))
	require.Equal(t, 94.0, ledgerSum(f.Ledger(t, chai)))

	deleted, err := f.Provider().DeleteOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	order, err := f.Provider().GetOrderWithLines(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, order)

	chaiLedger := f.Ledger(t, chai)
	assert.Equal(t, 99.0, ledgerSum(chaiLedger))
	assert.Equal(t, 100.0, ledgerSum(f.Ledger(t, chang)))

	var reversals int
	for _, e := range chaiLedger {
		if e.OrderID != nil {
			assert.Equal(t, keep, *e.OrderID, "entry %+v still linked to deleted order", e)
		}
		if e.Comment == models.DeallocationComment {
			reversals++
			assert.Equal(t, 5.0, e.Quantity)
			assert.Equal(t, models.TransactionTypePurchased, e.Type)
		}
	}
	assert.Equal(t, 1, reversals)

	chaiBefore, changBefore := f.Ledger(t, chai), f.Ledger(t, chang)
	again, err := f.Provider().DeleteOrder(ctx, id)
	require.NoError(t, err)
	assert.False(t, again)
	assert.Equal(t, chaiBefore, f.Ledger(t, chai))
	assert.Equal(t, changBefore, f.Ledger(t, chang))

	kept, err := f.Provider().GetOrderWithLines(ctx, keep)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Len(t, kept.Lines, 1)
}

func testDeleteMissingOrder(t *testing.T, f Fixture) {
	seedCatalogue(t, f)
	createOrder(t, f, 7, item(chai, 2, "18", 0), item(syrup, 1, "10", 0))

	before := map[int64][]models.InventoryTransaction{}
	for _, id := range []int64{chai, chang, syrup} {
		before[id] = f.Ledger(t, id)
	}

	deleted, err := f.Provider().DeleteOrder(context.Background(), missing)
	require.NoError(t, err)
	assert.False(t, deleted)

	for id, entries := range before {
		assert.Equal(t, entries, f.Ledger(t, id), "ledger of product %d changed", id)
	}
}

func testConcurrentCreates(t *testing.T, f Fixture) {
	seedCatalogue(t, f)

	const workers = 8
	ids := make(chan int64, workers)
	errs := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := f.Provider().CreateOrderWithAllocation(context.Background(), models.CreateOrderRequest{
				CustomerID: 20,
				Items:      []models.LineItem{item(chai, 1, "18", 0)},
			})
			if err != nil {
				errs <- err
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent create: %v", err)
	}

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate order id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers)
	assert.Equal(t, 100.0-workers, ledgerSum(f.Ledger(t, chai)))
}
