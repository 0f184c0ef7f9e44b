package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/safar/go-order-store/internal/models"
	"github.com/safar/go-order-store/internal/store"
	"github.com/shopspring/decimal"
)

type dailyRow struct {
	Day     time.Time       `db:"day"`
	Revenue decimal.Decimal `db:"revenue"`
}

// "Order Date" holds UTC wall-clock time, so date_trunc yields UTC days.
func (p *Provider) GetDailySales(ctx context.Context, from, to time.Time) ([]models.SalesByDay, error) {
	var rows []dailyRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT date_trunc('day', o."Order Date") AS day,
		       SUM(`+lineRevenueSQL+`) AS revenue
		FROM "Orders" o
		JOIN "Order Details" d ON d."Order ID" = o."Order ID"
		WHERE o."Order Date" >= $1 AND o."Order Date" < $2
		GROUP BY 1
		ORDER BY 1`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("get daily sales: %w", err)
	}

	sales := make([]models.SalesByDay, 0, len(rows))
	for _, r := range rows {
		sales = append(sales, models.SalesByDay{
			Day:     store.DayUTC(r.Day),
			Revenue: store.RoundMoney(r.Revenue),
		})
	}

	return sales, nil
}

func (p *Provider) GetTopProducts(ctx context.Context, from, to time.Time, topN int) ([]models.TopProductRow, error) {
	var rows []models.TopProductRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT ROW_NUMBER() OVER (ORDER BY SUM(`+lineRevenueSQL+`) DESC, d."Product ID") AS rank,
		       d."Product ID" AS productid,
		       COALESCE(p."Product Name", '') AS productname,
		       COALESCE(p."Category", '') AS category,
		       SUM(`+lineRevenueSQL+`) AS revenue
		FROM "Orders" o
		JOIN "Order Details" d ON d."Order ID" = o."Order ID"
		LEFT JOIN "Products" p ON p."ID" = d."Product ID"
		WHERE o."Order Date" >= $1 AND o."Order Date" < $2
		  AND d."Product ID" IS NOT NULL
		GROUP BY d."Product ID", p."Product Name", p."Category"
		ORDER BY rank
		LIMIT $3`, from.UTC(), to.UTC(), store.TopN(topN))
	if err != nil {
		return nil, fmt.Errorf("get top products: %w", err)
	}

	for i := range rows {
		rows[i].Revenue = store.RoundMoney(rows[i].Revenue)
	}
	if rows == nil {
		rows = []models.TopProductRow{}
	}

	return rows, nil
}
