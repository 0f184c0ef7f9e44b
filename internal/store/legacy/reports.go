package legacy

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/safar/go-order-store/internal/models"
	"github.com/safar/go-order-store/internal/store"
	"github.com/shopspring/decimal"
)

type salesRow struct {
	OrderDate time.Time     `db:"order_date"`
	ProductID sql.NullInt64 `db:"product_id"`
	revenueRow
}

// salesLines reads every line of the orders placed in [from, to).
func (p *Provider) salesLines(ctx context.Context, from, to time.Time) ([]salesRow, error) {
	var rows []salesRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT o.[Order Date] AS order_date, d.[Product ID] AS product_id,
		       d.[Unit Price] AS unit_price, d.[Quantity] AS quantity, d.[Discount] AS discount
		FROM [Orders] AS o
		INNER JOIN [Order Details] AS d ON d.[Order ID] = o.[Order ID]
		WHERE o.[Order Date] >= ? AND o.[Order Date] < ?`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *Provider) GetDailySales(ctx context.Context, from, to time.Time) ([]models.SalesByDay, error) {
	rows, err := p.salesLines(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("get daily sales: %w", err)
	}

	byDay := make(map[time.Time]decimal.Decimal)
	for _, r := range rows {
		day := store.DayUTC(r.OrderDate)
		byDay[day] = byDay[day].Add(r.revenue())
	}

	sales := make([]models.SalesByDay, 0, len(byDay))
	for day, revenue := range byDay {
		sales = append(sales, models.SalesByDay{Day: day, Revenue: store.RoundMoney(revenue)})
	}
	slices.SortFunc(sales, func(a, b models.SalesByDay) int {
		return a.Day.Compare(b.Day)
	})

	return sales, nil
}

func (p *Provider) GetTopProducts(ctx context.Context, from, to time.Time, topN int) ([]models.TopProductRow, error) {
	rows, err := p.salesLines(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("get top products: %w", err)
	}

	byProduct := make(map[int64]decimal.Decimal)
	for _, r := range rows {
		if !r.ProductID.Valid {
			continue
		}
		byProduct[r.ProductID.Int64] = byProduct[r.ProductID.Int64].Add(r.revenue())
	}

	top := make([]models.TopProductRow, 0, len(byProduct))
	for id, revenue := range byProduct {
		top = append(top, models.TopProductRow{ProductID: id, Revenue: revenue})
	}
	slices.SortFunc(top, func(a, b models.TopProductRow) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	if n := store.TopN(topN); len(top) > n {
		top = top[:n]
	}

	names, err := p.productNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("get top products: %w", err)
	}

	for i := range top {
		top[i].Rank = i + 1
		top[i].Revenue = store.RoundMoney(top[i].Revenue)
		if r, ok := names[top[i].ProductID]; ok {
			top[i].ProductName = r.Name.String
			top[i].Category = r.Category.String
		}
	}

	return top, nil
}

func (p *Provider) productNames(ctx context.Context) (map[int64]productRow, error) {
	var rows []productRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT [ID] AS id, [Product Name] AS name, [Category] AS category
		FROM [Products]`)
	if err != nil {
		return nil, err
	}

	names := make(map[int64]productRow, len(rows))
	for _, r := range rows {
		names[r.ID] = r
	}
	return names, nil
}
