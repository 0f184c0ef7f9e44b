package mongo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-order-store/internal/config"
	"github.com/safar/go-order-store/internal/database"
	"github.com/safar/go-order-store/internal/models"
	"github.com/safar/go-order-store/internal/store"
	"github.com/safar/go-order-store/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func setupTestClient(t *testing.T) *mongo.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping mongo container test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor: wait.ForLog("Waiting for connections").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start mongo container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)

	client, err := database.NewMongoClient(&config.MongoConfig{
		URI:            fmt.Sprintf("mongodb://%s:%s", host, port.Port()),
		ConnectTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := client.Disconnect(context.Background()); err != nil {
			t.Logf("Failed to disconnect mongo: %v", err)
		}
	})

	return client
}

// freshDatabase returns an empty database with a unique name.
func freshDatabase(t *testing.T, client *mongo.Client) *mongo.Database {
	t.Helper()
	db := client.Database("northwind_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		if err := db.Drop(context.Background()); err != nil {
			t.Logf("Failed to drop database: %v", err)
		}
	})
	return db
}

type fixture struct {
	db       *mongo.Database
	provider *Provider
}

func newFixture(db *mongo.Database, opts store.Options) *fixture {
	return &fixture{db: db, provider: New(db, opts)}
}

func (f *fixture) Provider() store.Provider { return f.provider }

func (f *fixture) SeedProduct(t *testing.T, p models.Product) {
	t.Helper()

	ledger := make([]ledgerDoc, 0, len(p.Transactions))
	for _, tx := range p.Transactions {
		ledger = append(ledger, ledgerDoc{
			ID:          primitive.NewObjectID(),
			Type:        tx.Type,
			CreatedDate: tx.CreatedAt.UTC(),
			Quantity:    tx.Quantity,
			OrderID:     tx.OrderID,
			Comments:    tx.Comment,
		})
	}

	_, err := f.db.Collection(productsCollection).InsertOne(context.Background(), bson.D{
		{Key: "_id", Value: p.ID},
		{Key: "productName", Value: p.Name},
		{Key: "category", Value: p.Category},
		{Key: "listPrice", Value: p.ListPrice.InexactFloat64()},
		{Key: "targetLevel", Value: p.TargetLevel},
		{Key: "minimumReorderQuantity", Value: p.MinimumReorderQuantity},
		{Key: "discontinued", Value: p.Discontinued},
		{Key: "inventoryTransactions", Value: ledger},
	})
	require.NoError(t, err)
}

func (f *fixture) Ledger(t *testing.T, productID int64) []models.InventoryTransaction {
	t.Helper()

	var product struct {
		Ledger []ledgerDoc `bson:"inventoryTransactions"`
	}
	err := f.db.Collection(productsCollection).FindOne(context.Background(),
		bson.D{{Key: "_id", Value: productID}}).Decode(&product)
	require.NoError(t, err)

	ledger := make([]models.InventoryTransaction, 0, len(product.Ledger))
	for _, e := range product.Ledger {
		ledger = append(ledger, models.InventoryTransaction{
			Type:      e.Type,
			CreatedAt: e.CreatedDate.UTC(),
			ProductID: productID,
			Quantity:  e.Quantity,
			OrderID:   e.OrderID,
			Comment:   e.Comments,
		})
	}
	return ledger
}

func (f *fixture) SetOrderDate(t *testing.T, orderID int64, at time.Time) {
	t.Helper()
	res, err := f.db.Collection(ordersCollection).UpdateOne(context.Background(),
		bson.D{{Key: "_id", Value: orderID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "orderDate", Value: at.UTC()}}}})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.MatchedCount)
}

func TestProvider(t *testing.T) {
	client := setupTestClient(t)

	storetest.Run(t, func(t *testing.T) storetest.Fixture {
		return newFixture(freshDatabase(t, client), store.Options{})
	})
}

func TestOrderCounter(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	t.Run("SeedsFromExistingOrders", func(t *testing.T) {
		f := newFixture(freshDatabase(t, client), store.Options{})
		_, err := f.db.Collection(ordersCollection).InsertOne(ctx, bson.D{
			{Key: "_id", Value: int64(500)},
			{Key: "customerId", Value: int64(1)},
			{Key: "orderDate", Value: time.Now().UTC()},
		})
		require.NoError(t, err)

		id, err := f.provider.CreateOrderWithAllocation(ctx, models.CreateOrderRequest{CustomerID: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(501), id)

		id, err = f.provider.CreateOrderWithAllocation(ctx, models.CreateOrderRequest{CustomerID: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(502), id)
	})

	t.Run("RejectsOverflow", func(t *testing.T) {
		f := newFixture(freshDatabase(t, client), store.Options{})
		_, err := f.db.Collection(countersCollection).InsertOne(ctx, bson.D{
			{Key: "_id", Value: orderCounterID},
			{Key: "seq", Value: int64(store.MaxOrderID)},
		})
		require.NoError(t, err)

		_, err = f.provider.CreateOrderWithAllocation(ctx, models.CreateOrderRequest{CustomerID: 1})
		require.ErrorIs(t, err, store.ErrIdentifierOverflow)

		count, err := f.db.Collection(ordersCollection).CountDocuments(ctx, bson.D{})
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestBumpMatchesLineIDBeforeProductID(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	f := newFixture(freshDatabase(t, client), store.Options{})

	_, err := f.db.Collection(ordersCollection).InsertOne(ctx, orderDoc{
		ID:        1,
		OrderDate: time.Now().UTC(),
		OrderDetails: []lineDoc{
			{ID: 7, ProductID: 3, Quantity: 1, UnitPrice: 10},
			{ID: 8, ProductID: 7, Quantity: 1, UnitPrice: 10},
			{ProductID: 9, Quantity: 1, UnitPrice: 10},
		},
	})
	require.NoError(t, err)

	n, err := f.provider.BumpOrderLineQuantity(ctx, 7, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.provider.BumpOrderLineQuantity(ctx, 9, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	order, err := f.provider.GetOrderWithLines(ctx, 1)
	require.NoError(t, err)
	require.Len(t, order.Lines, 3)
	assert.Equal(t, 5.0, order.Lines[0].Quantity)
	assert.Equal(t, 1.0, order.Lines[1].Quantity)
	assert.Equal(t, 3.0, order.Lines[2].Quantity)
}

func TestDeleteOrderDetachesLegacyAllocations(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	f := newFixture(freshDatabase(t, client), store.Options{})

	orderID := int64(42)
	_, err := f.db.Collection(ordersCollection).InsertOne(ctx, orderDoc{
		ID:           orderID,
		OrderDate:    time.Now().UTC(),
		OrderDetails: []lineDoc{{ProductID: 1, Quantity: 2, UnitPrice: 10}},
	})
	require.NoError(t, err)

	// Entries imported from older data carry no _id.
	_, err = f.db.Collection(productsCollection).InsertOne(ctx, bson.D{
		{Key: "_id", Value: int64(1)},
		{Key: "productName", Value: "Chai"},
		{Key: "inventoryTransactions", Value: bson.A{
			bson.D{{Key: "transactionType", Value: 1}, {Key: "quantity", Value: 10.0}},
			bson.D{
				{Key: "transactionType", Value: 2},
				{Key: "quantity", Value: -2.0},
				{Key: "orderId", Value: orderID},
				{Key: "comments", Value: models.AllocationComment},
			},
		}},
	})
	require.NoError(t, err)

	deleted, err := f.provider.DeleteOrder(ctx, orderID)
	require.NoError(t, err)
	require.True(t, deleted)

	ledger := f.Ledger(t, 1)
	require.Len(t, ledger, 3)
	for _, e := range ledger {
		assert.Nil(t, e.OrderID)
	}
	assert.Equal(t, 2.0, ledger[2].Quantity)
	assert.Equal(t, models.DeallocationComment, ledger[2].Comment)
}

func TestMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0.405000000000000", "0.41"},
		{"0.404999999999999", "0.4"},
		{"-0.405", "-0.41"},
		{"35.10000000000000000", "35.1"},
		{"0", "0"},
	}
	for _, tt := range tests {
		d, err := primitive.ParseDecimal128(tt.in)
		require.NoError(t, err)
		got, err := money(d)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.String(), "amount %s", tt.in)
	}

	_, err := money(primitive.NewDecimal128(0x7c00000000000000, 0))
	assert.Error(t, err)
}

func TestWritesWithCancelledContext(t *testing.T) {
	client := setupTestClient(t)
	f := newFixture(freshDatabase(t, client), store.Options{})
	f.SeedProduct(t, models.Product{ID: 1, Name: "Chai", Transactions: []models.InventoryTransaction{
		{Type: models.TransactionTypePurchased, CreatedAt: time.Now().UTC(), Quantity: 10},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.provider.CreateOrderWithAllocation(ctx, models.CreateOrderRequest{
		CustomerID: 1,
		Items:      []models.LineItem{{ProductID: 1, Quantity: 1}},
	})
	require.Error(t, err)

	count, err := f.db.Collection(ordersCollection).CountDocuments(context.Background(), bson.D{})
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, f.Ledger(t, 1), 1)

	id, err := f.provider.CreateOrderWithAllocation(context.Background(), models.CreateOrderRequest{
		CustomerID: 1,
		Items:      []models.LineItem{{ProductID: 1, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = f.provider.DeleteOrder(ctx, id)
	require.Error(t, err)

	order, err := f.provider.GetOrderWithLines(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Len(t, f.Ledger(t, 1), 2)
}

// A write that fails after reaching the server leaves state behind. The
// compensations must clear it even under a cancelled context.
func TestCompensationsClearAppliedWrites(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	f := newFixture(freshDatabase(t, client), store.Options{})
	f.SeedProduct(t, models.Product{ID: 1, Name: "Chai"})
	f.SeedProduct(t, models.Product{ID: 2, Name: "Chang"})

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	t.Run("CreateInsertApplied", func(t *testing.T) {
		orderID := int64(70)
		_, err := f.db.Collection(ordersCollection).InsertOne(ctx, orderDoc{
			ID:           orderID,
			OrderDate:    time.Now().UTC(),
			OrderDetails: []lineDoc{{ProductID: 1, Quantity: 2, UnitPrice: 10}},
		})
		require.NoError(t, err)

		cause := errors.New("create order: context canceled")
		err = f.provider.undoCreate(cancelled, orderID, []int64{1}, cause)
		require.ErrorIs(t, err, cause)
		assert.NotContains(t, err.Error(), "rollback incomplete")

		order, err := f.provider.GetOrderWithLines(ctx, orderID)
		require.NoError(t, err)
		assert.Nil(t, order)
	})

	t.Run("DeleteReversalApplied", func(t *testing.T) {
		landed := ledgerDoc{
			ID:          primitive.NewObjectID(),
			Type:        models.TransactionTypePurchased,
			CreatedDate: time.Now().UTC(),
			Quantity:    2,
			Comments:    models.DeallocationComment,
		}
		require.NoError(t, f.provider.pushLedger(ctx, 1, landed))

		pushed := []reversal{
			{productID: 1, entryID: landed.ID},
			{productID: 2, entryID: primitive.NewObjectID()},
		}
		cause := errors.New("deallocate inventory: context canceled")
		err := f.provider.undoDelete(cancelled, 71, pushed, nil, cause)
		require.ErrorIs(t, err, cause)
		assert.NotContains(t, err.Error(), "rollback incomplete")

		assert.Empty(t, f.Ledger(t, 1))
		assert.Empty(t, f.Ledger(t, 2))
	})
}
