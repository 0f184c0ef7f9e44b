package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/safar/go-order-store/internal/models"
	"github.com/safar/go-order-store/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func dateRange(from, to time.Time) bson.D {
	return bson.D{{Key: "orderDate", Value: bson.D{
		{Key: "$gte", Value: from.UTC()},
		{Key: "$lt", Value: to.UTC()},
	}}}
}

// GetDailySales buckets by the order date truncated in UTC ($dateTrunc,
// MongoDB 5.0+).
func (p *Provider) GetDailySales(ctx context.Context, from, to time.Time) ([]models.SalesByDay, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: dateRange(from, to)}},
		{{Key: "$unwind", Value: "$orderDetails"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateTrunc", Value: bson.D{
				{Key: "date", Value: "$orderDate"},
				{Key: "unit", Value: "day"},
				{Key: "timezone", Value: "UTC"},
			}}}},
			{Key: "revenue", Value: bson.D{{Key: "$sum", Value: revenueExpr("$orderDetails")}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}

	cur, err := p.orders().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("get daily sales: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Day     time.Time            `bson:"_id"`
		Revenue primitive.Decimal128 `bson:"revenue"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode daily sales: %w", err)
	}

	sales := make([]models.SalesByDay, 0, len(rows))
	for _, r := range rows {
		revenue, err := money(r.Revenue)
		if err != nil {
			return nil, fmt.Errorf("daily sales %s: %w", r.Day.Format(time.DateOnly), err)
		}
		sales = append(sales, models.SalesByDay{
			Day:     store.DayUTC(r.Day),
			Revenue: revenue,
		})
	}

	return sales, nil
}

func (p *Provider) GetTopProducts(ctx context.Context, from, to time.Time, topN int) ([]models.TopProductRow, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: dateRange(from, to)}},
		{{Key: "$unwind", Value: "$orderDetails"}},
		{{Key: "$match", Value: bson.D{{Key: "orderDetails.productId", Value: bson.D{{Key: "$ne", Value: nil}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$orderDetails.productId"},
			{Key: "revenue", Value: bson.D{{Key: "$sum", Value: revenueExpr("$orderDetails")}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "revenue", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: store.TopN(topN)}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: productsCollection},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "product"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$product"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "revenue", Value: 1},
			{Key: "productName", Value: ifNull("$product.productName", "")},
			{Key: "category", Value: ifNull("$product.category", "")},
		}}},
	}

	cur, err := p.orders().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("get top products: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		ProductID int64                `bson:"_id"`
		Revenue   primitive.Decimal128 `bson:"revenue"`
		Name      string               `bson:"productName"`
		Category  string               `bson:"category"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode top products: %w", err)
	}

	top := make([]models.TopProductRow, 0, len(rows))
	for i, r := range rows {
		revenue, err := money(r.Revenue)
		if err != nil {
			return nil, fmt.Errorf("product %d revenue: %w", r.ProductID, err)
		}
		top = append(top, models.TopProductRow{
			Rank:        i + 1,
			ProductID:   r.ProductID,
			ProductName: r.Name,
			Category:    r.Category,
			Revenue:     revenue,
		})
	}

	return top, nil
}
