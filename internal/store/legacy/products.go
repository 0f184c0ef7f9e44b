package legacy

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/safar/go-order-store/internal/models"
	"github.com/safar/go-order-store/internal/store"
	"github.com/shopspring/decimal"
)

type productRow struct {
	ID             int64               `db:"id"`
	Name           sql.NullString      `db:"name"`
	Category       sql.NullString      `db:"category"`
	ListPrice      decimal.NullDecimal `db:"list_price"`
	TargetLevel    sql.NullInt64       `db:"target_level"`
	MinimumReorder sql.NullInt64       `db:"minimum_reorder"`
}

type ledgerSum struct {
	ProductID int64   `db:"product_id"`
	Total     float64 `db:"total"`
}

// SearchProducts matches names case-insensitively in Go; the engine's LIKE
// wildcards would otherwise leak into the query text.
func (p *Provider) SearchProducts(ctx context.Context, query string, pageSize int) ([]models.ProductSearchRow, error) {
	var rows []productRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT [ID] AS id, [Product Name] AS name, [Category] AS category, [List Price] AS list_price,
		       [Target Level] AS target_level, [Minimum Reorder Quantity] AS minimum_reorder
		FROM [Products]
		WHERE [Discontinued] = 0 OR [Discontinued] IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}

	needle := strings.ToLower(query)
	products := []models.ProductSearchRow{}
	for _, r := range rows {
		if needle != "" && !strings.Contains(strings.ToLower(r.Name.String), needle) {
			continue
		}
		products = append(products, models.ProductSearchRow{
			ID:        r.ID,
			Name:      r.Name.String,
			Category:  r.Category.String,
			ListPrice: r.ListPrice.Decimal,
		})
	}

	slices.SortFunc(products, func(a, b models.ProductSearchRow) int {
		if c := a.ListPrice.Cmp(b.ListPrice); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if limit := store.PageSize(pageSize); len(products) > limit {
		products = products[:limit]
	}

	return products, nil
}

// GetReorderSuggestions combines three grouped reads: the catalogue, the
// ledger balance and the trailing outflow.
func (p *Provider) GetReorderSuggestions(ctx context.Context) ([]models.ReorderSuggestionRow, error) {
	var products []productRow
	err := p.db.SelectContext(ctx, &products, `
		SELECT [ID] AS id, [Product Name] AS name, [Category] AS category, [List Price] AS list_price,
		       [Target Level] AS target_level, [Minimum Reorder Quantity] AS minimum_reorder
		FROM [Products]`)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}

	var balances []ledgerSum
	err = p.db.SelectContext(ctx, &balances, `
		SELECT [Product ID] AS product_id, SUM([Quantity]) AS total
		FROM [Inventory Transactions]
		WHERE [Product ID] IS NOT NULL
		GROUP BY [Product ID]`)
	if err != nil {
		return nil, fmt.Errorf("get stock balances: %w", err)
	}

	var outflows []ledgerSum
	err = p.db.SelectContext(ctx, &outflows, `
		SELECT [Product ID] AS product_id, SUM(0 - [Quantity]) AS total
		FROM [Inventory Transactions]
		WHERE [Product ID] IS NOT NULL AND [Quantity] < 0 AND [Transaction Created Date] >= ?
		GROUP BY [Product ID]`, p.opts.OutflowSince())
	if err != nil {
		return nil, fmt.Errorf("get stock outflow: %w", err)
	}

	onHand := make(map[int64]float64, len(balances))
	for _, b := range balances {
		onHand[b.ProductID] = b.Total
	}
	outflow := make(map[int64]float64, len(outflows))
	for _, o := range outflows {
		outflow[o.ProductID] = o.Total
	}

	suggestions := []models.ReorderSuggestionRow{}
	for _, r := range products {
		var stock *float64
		if v, ok := onHand[r.ID]; ok {
			stock = &v
		}
		target := r.TargetLevel.Int64
		if !store.NeedsReorder(stock, target) {
			continue
		}
		suggestions = append(suggestions, models.ReorderSuggestionRow{
			ProductID:              r.ID,
			ProductName:            r.Name.String,
			OnHand:                 stock,
			TargetLevel:            target,
			MinimumReorderQuantity: r.MinimumReorder.Int64,
			Outflow30d:             outflow[r.ID],
			SuggestedQuantity:      store.SuggestedQuantity(stock, target, r.MinimumReorder.Int64),
		})
	}

	slices.SortFunc(suggestions, func(a, b models.ReorderSuggestionRow) int {
		if c := cmp.Compare(b.Outflow30d, a.Outflow30d); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})

	if len(suggestions) > store.ReorderLimit {
		suggestions = suggestions[:store.ReorderLimit]
	}

	return suggestions, nil
}
