package mongo

import (
	"context"
	"fmt"
	"regexp"

	"github.com/safar/go-order-store/internal/models"
	"github.com/safar/go-order-store/internal/store"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func (p *Provider) SearchProducts(ctx context.Context, query string, pageSize int) ([]models.ProductSearchRow, error) {
	match := bson.D{{Key: "discontinued", Value: bson.D{{Key: "$ne", Value: true}}}}
	if query != "" {
		match = append(match, bson.E{Key: "productName", Value: primitive.Regex{
			Pattern: regexp.QuoteMeta(query),
			Options: "i",
		}})
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$project", Value: bson.D{
			{Key: "productName", Value: ifNull("$productName", "")},
			{Key: "category", Value: ifNull("$category", "")},
			{Key: "listPrice", Value: ifNull("$listPrice", 0)},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "listPrice", Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: store.PageSize(pageSize)}},
	}

	cur, err := p.products().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID        int64   `bson:"_id"`
		Name      string  `bson:"productName"`
		Category  string  `bson:"category"`
		ListPrice float64 `bson:"listPrice"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	products := make([]models.ProductSearchRow, 0, len(rows))
	for _, r := range rows {
		products = append(products, models.ProductSearchRow{
			ID:        r.ID,
			Name:      r.Name,
			Category:  r.Category,
			ListPrice: decimal.NewFromFloat(r.ListPrice),
		})
	}

	return products, nil
}

// GetReorderSuggestions sums each product's embedded ledger. A product with
// an empty or missing ledger has a null onHand and always qualifies.
func (p *Provider) GetReorderSuggestions(ctx context.Context) ([]models.ReorderSuggestionRow, error) {
	since := p.opts.OutflowSince()

	pipeline := mongo.Pipeline{
		{{Key: "$project", Value: bson.D{
			{Key: "productName", Value: ifNull("$productName", "")},
			{Key: "targetLevel", Value: ifNull("$targetLevel", 0)},
			{Key: "minimumReorderQuantity", Value: ifNull("$minimumReorderQuantity", 0)},
			{Key: "ledger", Value: ifNull("$inventoryTransactions", bson.A{})},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "productName", Value: 1},
			{Key: "targetLevel", Value: 1},
			{Key: "minimumReorderQuantity", Value: 1},
			{Key: "onHand", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$gt", Value: bson.A{bson.D{{Key: "$size", Value: "$ledger"}}, 0}}},
				bson.D{{Key: "$sum", Value: "$ledger.quantity"}},
				nil,
			}}}},
			{Key: "outflow", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$map", Value: bson.D{
				{Key: "input", Value: bson.D{{Key: "$filter", Value: bson.D{
					{Key: "input", Value: "$ledger"},
					{Key: "as", Value: "t"},
					{Key: "cond", Value: bson.D{{Key: "$and", Value: bson.A{
						bson.D{{Key: "$lt", Value: bson.A{"$$t.quantity", 0}}},
						bson.D{{Key: "$gte", Value: bson.A{"$$t.createdDate", since}}},
					}}}},
				}}}},
				{Key: "as", Value: "t"},
				{Key: "in", Value: bson.D{{Key: "$abs", Value: "$$t.quantity"}}},
			}}}}}},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{"$onHand", nil}}},
			bson.D{{Key: "$lt", Value: bson.A{"$onHand", "$targetLevel"}}},
		}}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "outflow", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: store.ReorderLimit}},
	}

	cur, err := p.products().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("get reorder suggestions: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID             int64    `bson:"_id"`
		Name           string   `bson:"productName"`
		TargetLevel    int64    `bson:"targetLevel"`
		MinimumReorder int64    `bson:"minimumReorderQuantity"`
		OnHand         *float64 `bson:"onHand"`
		Outflow        float64  `bson:"outflow"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode reorder suggestions: %w", err)
	}

	suggestions := make([]models.ReorderSuggestionRow, 0, len(rows))
	for _, r := range rows {
		suggestions = append(suggestions, models.ReorderSuggestionRow{
			ProductID:              r.ID,
			ProductName:            r.Name,
			OnHand:                 r.OnHand,
			TargetLevel:            r.TargetLevel,
			MinimumReorderQuantity: r.MinimumReorder,
			Outflow30d:             r.Outflow,
			SuggestedQuantity:      store.SuggestedQuantity(r.OnHand, r.TargetLevel, r.MinimumReorder),
		})
	}

	return suggestions, nil
}
