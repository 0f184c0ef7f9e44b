package mongo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/safar/go-order-store/internal/models"
	"github.com/safar/go-order-store/internal/store"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type orderView struct {
	Order    orderDoc `bson:",inline"`
	Products []struct {
		ID   int64  `bson:"_id"`
		Name string `bson:"productName"`
	} `bson:"products"`
}

func (p *Provider) GetOrderWithLines(ctx context.Context, orderID int64) (*models.Order, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "_id", Value: orderID}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: productsCollection},
			{Key: "localField", Value: "orderDetails.productId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "products"},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "customerId", Value: 1},
			{Key: "employeeId", Value: 1},
			{Key: "orderDate", Value: 1},
			{Key: "shipperId", Value: 1},
			{Key: "shippingFee", Value: 1},
			{Key: "orderDetails", Value: 1},
			{Key: "products._id", Value: 1},
			{Key: "products.productName", Value: 1},
		}}},
	}

	cur, err := p.orders().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	defer cur.Close(ctx)

	var views []orderView
	if err := cur.All(ctx, &views); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	if len(views) == 0 {
		return nil, nil
	}
	view := views[0].Order
	products := views[0].Products

	names := make(map[int64]string, len(products))
	for _, product := range products {
		names[product.ID] = product.Name
	}

	order := &models.Order{
		ID:          view.ID,
		CustomerID:  view.CustomerID,
		EmployeeID:  view.EmployeeID,
		ShipperID:   view.ShipperID,
		ShippingFee: decimal.NewFromFloat(view.ShippingFee),
		Lines:       make([]models.OrderLine, 0, len(view.OrderDetails)),
	}
	if !view.OrderDate.IsZero() {
		order.OrderDate = view.OrderDate.UTC()
	}

	for _, d := range view.OrderDetails {
		order.Lines = append(order.Lines, models.OrderLine{
			ID:          d.ID,
			OrderID:     view.ID,
			ProductID:   d.ProductID,
			ProductName: names[d.ProductID],
			UnitPrice:   decimal.NewFromFloat(d.UnitPrice),
			Quantity:    d.Quantity,
			Discount:    d.Discount,
		})
	}

	return order, nil
}

func (p *Provider) GetCustomerOrderHistory(ctx context.Context, customerID int64, pageSize int) ([]models.OrderHistoryRow, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "customerId", Value: customerID}}}},
		{{Key: "$sort", Value: bson.D{{Key: "orderDate", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$limit", Value: store.PageSize(pageSize)}},
		{{Key: "$project", Value: bson.D{
			{Key: "orderDate", Value: 1},
			{Key: "total", Value: toDecimal(bson.D{{Key: "$sum", Value: bson.D{{Key: "$map", Value: bson.D{
				{Key: "input", Value: ifNull("$orderDetails", bson.A{})},
				{Key: "as", Value: "d"},
				{Key: "in", Value: revenueExpr("$$d")},
			}}}}})},
		}}},
	}

	cur, err := p.orders().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("get customer order history: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID        int64                `bson:"_id"`
		OrderDate time.Time            `bson:"orderDate"`
		Total     primitive.Decimal128 `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode order history: %w", err)
	}

	history := make([]models.OrderHistoryRow, 0, len(rows))
	for _, r := range rows {
		total, err := money(r.Total)
		if err != nil {
			return nil, fmt.Errorf("order %d total: %w", r.ID, err)
		}
		row := models.OrderHistoryRow{
			OrderID: r.ID,
			Total:   total,
		}
		if !r.OrderDate.IsZero() {
			row.OrderDate = r.OrderDate.UTC()
		}
		history = append(history, row)
	}

	return history, nil
}

func (p *Provider) CreateOrderWithAllocation(ctx context.Context, req models.CreateOrderRequest) (int64, error) {
	items, err := store.PrepareItems(req.Items)
	if err != nil {
		return 0, err
	}
	allocationType := store.AllocationType(req.AllocationType)

	productIDs := distinctProductIDs(items)
	if err := p.requireProducts(ctx, productIDs); err != nil {
		return 0, err
	}

	orderID, err := p.nextOrderID(ctx)
	if err != nil {
		return 0, err
	}
	if err := store.CheckOrderID(orderID); err != nil {
		return 0, err
	}

	now := p.opts.UTCNow()
	order := orderDoc{
		ID:           orderID,
		CustomerID:   req.CustomerID,
		EmployeeID:   req.EmployeeID,
		OrderDate:    now,
		ShipperID:    req.ShipperID,
		ShippingFee:  req.Freight.InexactFloat64(),
		OrderDetails: make([]lineDoc, 0, len(items)),
	}
	for _, item := range items {
		order.OrderDetails = append(order.OrderDetails, lineDoc{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.InexactFloat64(),
			Discount:  item.Discount,
		})
	}

	if _, err := p.orders().InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("create order: %w", err)
		}
		// A timed out or cancelled insert may still have been applied.
		return 0, p.undoCreate(ctx, orderID, productIDs, fmt.Errorf("create order: %w", err))
	}

	for _, item := range items {
		entry := ledgerDoc{
			ID:          primitive.NewObjectID(),
			Type:        allocationType,
			CreatedDate: now,
			Quantity:    store.AllocationQuantity(item.Quantity),
			OrderID:     &orderID,
			Comments:    models.AllocationComment,
		}
		if err := p.pushLedger(ctx, item.ProductID, entry); err != nil {
			return 0, p.undoCreate(ctx, orderID, productIDs, fmt.Errorf("allocate inventory: %w", err))
		}
	}

	return orderID, nil
}

func (p *Provider) requireProducts(ctx context.Context, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}

	cur, err := p.products().Find(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: productIDs}}}},
		options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return fmt.Errorf("check products exist: %w", err)
	}
	defer cur.Close(ctx)

	var found []struct {
		ID int64 `bson:"_id"`
	}
	if err := cur.All(ctx, &found); err != nil {
		return fmt.Errorf("decode products: %w", err)
	}

	existing := make(map[int64]bool, len(found))
	for _, f := range found {
		existing[f.ID] = true
	}
	for _, id := range productIDs {
		if !existing[id] {
			return fmt.Errorf("product %d: %w", id, store.ErrProductNotFound)
		}
	}
	return nil
}

func (p *Provider) pushLedger(ctx context.Context, productID int64, entry ledgerDoc) error {
	res, err := p.products().UpdateOne(ctx,
		bson.D{{Key: "_id", Value: productID}},
		bson.D{{Key: "$push", Value: bson.D{{Key: "inventoryTransactions", Value: entry}}}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("product %d: %w", productID, store.ErrProductNotFound)
	}
	return nil
}

// undoCreate removes a partially allocated order and returns cause. It runs
// even when ctx is already cancelled.
func (p *Provider) undoCreate(ctx context.Context, orderID int64, productIDs []int64, cause error) error {
	cctx := context.WithoutCancel(ctx)
	p.opts.Logger.Printf("Rolling back order %d: %v", orderID, cause)

	var errs []error
	if _, err := p.products().UpdateMany(cctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: productIDs}}}},
		bson.D{{Key: "$pull", Value: bson.D{{Key: "inventoryTransactions", Value: bson.D{
			{Key: "orderId", Value: orderID},
			{Key: "comments", Value: models.AllocationComment},
		}}}}}); err != nil {
		errs = append(errs, fmt.Errorf("pull allocations: %w", err))
	}

	if _, err := p.orders().DeleteOne(cctx, bson.D{{Key: "_id", Value: orderID}}); err != nil {
		errs = append(errs, fmt.Errorf("delete order: %w", err))
	}

	if len(errs) > 0 {
		p.opts.Logger.Printf("Rollback of order %d incomplete: %v", orderID, errors.Join(errs...))
		return fmt.Errorf("%w (rollback incomplete: %v)", cause, errors.Join(errs...))
	}
	return cause
}

func (p *Provider) BumpOrderLineQuantity(ctx context.Context, lineOrProductID int64, delta float64) (int64, error) {
	affected, err := p.bumpLines(ctx, "id", lineOrProductID, delta)
	if err != nil || affected > 0 {
		return affected, err
	}

	return p.bumpLines(ctx, "productId", lineOrProductID, delta)
}

// bumpLines increments every embedded line whose field equals value and
// reports how many lines matched.
func (p *Provider) bumpLines(ctx context.Context, field string, value int64, delta float64) (int64, error) {
	path := "orderDetails." + field

	cur, err := p.orders().Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: path, Value: value}}}},
		{{Key: "$unwind", Value: "$orderDetails"}},
		{{Key: "$match", Value: bson.D{{Key: path, Value: value}}}},
		{{Key: "$count", Value: "lines"}},
	})
	if err != nil {
		return 0, fmt.Errorf("count order lines: %w", err)
	}
	defer cur.Close(ctx)

	var counted []struct {
		Lines int64 `bson:"lines"`
	}
	if err := cur.All(ctx, &counted); err != nil {
		return 0, fmt.Errorf("decode line count: %w", err)
	}
	if len(counted) == 0 || counted[0].Lines == 0 {
		return 0, nil
	}

	res, err := p.orders().UpdateMany(ctx,
		bson.D{{Key: path, Value: value}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "orderDetails.$[line].quantity", Value: delta}}}},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []any{bson.D{{Key: "line." + field, Value: value}}},
		}))
	if err != nil {
		return 0, fmt.Errorf("bump order line quantity: %w", err)
	}
	if res.MatchedCount == 0 {
		return 0, nil
	}

	return counted[0].Lines, nil
}

type reversal struct {
	productID int64
	entryID   primitive.ObjectID
}

func (p *Provider) DeleteOrder(ctx context.Context, orderID int64) (bool, error) {
	var order struct {
		OrderDetails []struct {
			ProductID *int64   `bson:"productId"`
			Quantity  *float64 `bson:"quantity"`
		} `bson:"orderDetails"`
	}
	err := p.orders().FindOne(ctx, bson.D{{Key: "_id", Value: orderID}}).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("get order: %w", err)
	}

	allocations, err := p.allocationEntries(ctx, orderID)
	if err != nil {
		return false, err
	}

	now := p.opts.UTCNow()
	var pushed []reversal
	for _, d := range order.OrderDetails {
		if d.ProductID == nil || d.Quantity == nil {
			continue
		}
		entry := ledgerDoc{
			ID:          primitive.NewObjectID(),
			Type:        p.opts.DeallocationType,
			CreatedDate: now,
			Quantity:    math.Abs(*d.Quantity),
			Comments:    models.DeallocationComment,
		}
		// Recorded before the write: a failed push may still have landed, and
		// pulling an absent entry is a no-op.
		pushed = append(pushed, reversal{productID: *d.ProductID, entryID: entry.ID})
		if err := p.pushLedger(ctx, *d.ProductID, entry); err != nil {
			return false, p.undoDelete(ctx, orderID, pushed, nil, fmt.Errorf("deallocate inventory: %w", err))
		}
	}

	_, err = p.products().UpdateMany(ctx,
		bson.D{{Key: "inventoryTransactions", Value: bson.D{{Key: "$elemMatch", Value: allocationMatch(orderID)}}}},
		bson.D{{Key: "$unset", Value: bson.D{{Key: "inventoryTransactions.$[t].orderId", Value: ""}}}},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []any{bson.D{
				{Key: "t.orderId", Value: orderID},
				{Key: "t.comments", Value: models.AllocationComment},
			}},
		}))
	if err != nil {
		return false, p.undoDelete(ctx, orderID, pushed, allocations, fmt.Errorf("release allocations: %w", err))
	}

	if _, err := p.orders().DeleteOne(ctx, bson.D{{Key: "_id", Value: orderID}}); err != nil {
		return false, p.undoDelete(ctx, orderID, pushed, allocations, fmt.Errorf("delete order: %w", err))
	}

	return true, nil
}

// allocationEntries lists the ids of ledger entries allocated to the order.
func (p *Provider) allocationEntries(ctx context.Context, orderID int64) ([]primitive.ObjectID, error) {
	cur, err := p.products().Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "inventoryTransactions", Value: bson.D{{Key: "$elemMatch", Value: allocationMatch(orderID)}}}}}},
		{{Key: "$unwind", Value: "$inventoryTransactions"}},
		{{Key: "$replaceWith", Value: "$inventoryTransactions"}},
		{{Key: "$match", Value: allocationMatch(orderID)}},
		{{Key: "$project", Value: bson.D{{Key: "_id", Value: 1}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("find allocations: %w", err)
	}
	defer cur.Close(ctx)

	var entries []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode allocations: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, len(entries))
	for _, e := range entries {
		if !e.ID.IsZero() {
			ids = append(ids, e.ID)
		}
	}
	return ids, nil
}

func allocationMatch(orderID int64) bson.D {
	return bson.D{
		{Key: "orderId", Value: orderID},
		{Key: "comments", Value: models.AllocationComment},
	}
}

// undoDelete pulls the reversal entries already written and re-links the
// allocations to the order, then returns cause.
func (p *Provider) undoDelete(ctx context.Context, orderID int64, pushed []reversal, allocations []primitive.ObjectID, cause error) error {
	cctx := context.WithoutCancel(ctx)
	p.opts.Logger.Printf("Rolling back delete of order %d: %v", orderID, cause)

	var errs []error
	for _, r := range pushed {
		if _, err := p.products().UpdateOne(cctx,
			bson.D{{Key: "_id", Value: r.productID}},
			bson.D{{Key: "$pull", Value: bson.D{{Key: "inventoryTransactions", Value: bson.D{{Key: "_id", Value: r.entryID}}}}}}); err != nil {
			errs = append(errs, fmt.Errorf("pull reversal for product %d: %w", r.productID, err))
		}
	}

	if len(allocations) > 0 {
		if _, err := p.products().UpdateMany(cctx,
			bson.D{{Key: "inventoryTransactions._id", Value: bson.D{{Key: "$in", Value: allocations}}}},
			bson.D{{Key: "$set", Value: bson.D{{Key: "inventoryTransactions.$[t].orderId", Value: orderID}}}},
			options.Update().SetArrayFilters(options.ArrayFilters{
				Filters: []any{bson.D{{Key: "t._id", Value: bson.D{{Key: "$in", Value: allocations}}}}},
			})); err != nil {
			errs = append(errs, fmt.Errorf("relink allocations: %w", err))
		}
	}

	if len(errs) > 0 {
		p.opts.Logger.Printf("Rollback of order %d delete incomplete: %v", orderID, errors.Join(errs...))
		return fmt.Errorf("%w (rollback incomplete: %v)", cause, errors.Join(errs...))
	}
	return cause
}

func distinctProductIDs(items []models.LineItem) []int64 {
	seen := make(map[int64]bool, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}
