package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-order-store/internal/models"
	"github.com/safar/go-order-store/internal/store"
)

type reorderRow struct {
	ProductID      int64           `db:"product_id"`
	ProductName    string          `db:"product_name"`
	OnHand         sql.NullFloat64 `db:"on_hand"`
	TargetLevel    int64           `db:"target_level"`
	MinimumReorder int64           `db:"minimum_reorder"`
	Outflow        float64         `db:"outflow"`
}

func (p *Provider) SearchProducts(ctx context.Context, query string, pageSize int) ([]models.ProductSearchRow, error) {
	products := []models.ProductSearchRow{}
	err := p.db.SelectContext(ctx, &products, `
		SELECT "ID" AS id,
		       COALESCE("Product Name", '') AS name,
		       COALESCE("Category", '') AS category,
		       COALESCE("List Price", 0) AS listprice
		FROM "Products"
		WHERE NOT COALESCE("Discontinued", false)
		  AND ($1 = '' OR strpos(lower(COALESCE("Product Name", '')), lower($1)) > 0)
		ORDER BY COALESCE("List Price", 0), "ID"
		LIMIT $2`, query, store.PageSize(pageSize))
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}

	return products, nil
}

// GetReorderSuggestions derives stock from the whole ledger and outflow from
// its trailing 30 days in a single pass over "Inventory Transactions".
func (p *Provider) GetReorderSuggestions(ctx context.Context) ([]models.ReorderSuggestionRow, error) {
	var rows []reorderRow
	err := p.db.SelectContext(ctx, &rows, `
		WITH ledger AS (
			SELECT "Product ID",
			       SUM("Quantity") AS on_hand,
			       SUM(CASE WHEN "Quantity" < 0 AND "Transaction Created Date" >= $1
			                THEN -"Quantity" ELSE 0 END) AS outflow
			FROM "Inventory Transactions"
			GROUP BY "Product ID"
		)
		SELECT p."ID" AS product_id,
		       COALESCE(p."Product Name", '') AS product_name,
		       l.on_hand AS on_hand,
		       COALESCE(p."Target Level", 0) AS target_level,
		       COALESCE(p."Minimum Reorder Quantity", 0) AS minimum_reorder,
		       COALESCE(l.outflow, 0) AS outflow
		FROM "Products" p
		LEFT JOIN ledger l ON l."Product ID" = p."ID"
		WHERE l.on_hand IS NULL OR l.on_hand < COALESCE(p."Target Level", 0)
		ORDER BY outflow DESC, p."ID"
		LIMIT $2`, p.opts.OutflowSince(), store.ReorderLimit)
	if err != nil {
		return nil, fmt.Errorf("get reorder suggestions: %w", err)
	}

	suggestions := make([]models.ReorderSuggestionRow, 0, len(rows))
	for _, r := range rows {
		var onHand *float64
		if r.OnHand.Valid {
			v := r.OnHand.Float64
			onHand = &v
		}
		suggestions = append(suggestions, models.ReorderSuggestionRow{
			ProductID:              r.ProductID,
			ProductName:            r.ProductName,
			OnHand:                 onHand,
			TargetLevel:            r.TargetLevel,
			MinimumReorderQuantity: r.MinimumReorder,
			Outflow30d:             r.Outflow,
			SuggestedQuantity:      store.SuggestedQuantity(onHand, r.TargetLevel, r.MinimumReorder),
		})
	}

	return suggestions, nil
}
