package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
	"github.com/safar/go-order-store/internal/database"
	"github.com/safar/go-order-store/internal/models"
	"github.com/safar/go-order-store/internal/store"
	"github.com/shopspring/decimal"
)

type orderRow struct {
	ID          int64           `db:"id"`
	CustomerID  int64           `db:"customer_id"`
	EmployeeID  int64           `db:"employee_id"`
	OrderDate   sql.NullTime    `db:"order_date"`
	ShipperID   int64           `db:"shipper_id"`
	ShippingFee decimal.Decimal `db:"shipping_fee"`
}

type lineRow struct {
	ID          int64           `db:"id"`
	OrderID     int64           `db:"order_id"`
	ProductID   int64           `db:"product_id"`
	ProductName string          `db:"product_name"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	Quantity    float64         `db:"quantity"`
	Discount    float64         `db:"discount"`
}

type historyRow struct {
	OrderID   int64           `db:"order_id"`
	OrderDate sql.NullTime    `db:"order_date"`
	Total     decimal.Decimal `db:"total"`
}

func (p *Provider) GetOrderWithLines(ctx context.Context, orderID int64) (*models.Order, error) {
	var header orderRow
	err := p.db.GetContext(ctx, &header, `
		SELECT "Order ID" AS id,
		       COALESCE("Customer ID", 0) AS customer_id,
		       COALESCE("Employee ID", 0) AS employee_id,
		       "Order Date" AS order_date,
		       COALESCE("Shipper ID", 0) AS shipper_id,
		       COALESCE("Shipping Fee", 0) AS shipping_fee
		FROM "Orders"
		WHERE "Order ID" = $1`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	var lines []lineRow
	err = p.db.SelectContext(ctx, &lines, `
		SELECT d."ID" AS id,
		       d."Order ID" AS order_id,
		       COALESCE(d."Product ID", 0) AS product_id,
		       COALESCE(p."Product Name", '') AS product_name,
		       COALESCE(d."Unit Price", 0) AS unit_price,
		       COALESCE(d."Quantity", 0) AS quantity,
		       COALESCE(d."Discount", 0) AS discount
		FROM "Order Details" d
		LEFT JOIN "Products" p ON p."ID" = d."Product ID"
		WHERE d."Order ID" = $1
		ORDER BY d."ID"`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}

	order := &models.Order{
		ID:          header.ID,
		CustomerID:  header.CustomerID,
		EmployeeID:  header.EmployeeID,
		ShipperID:   header.ShipperID,
		ShippingFee: header.ShippingFee,
		Lines:       make([]models.OrderLine, 0, len(lines)),
	}
	if header.OrderDate.Valid {
		order.OrderDate = header.OrderDate.Time.UTC()
	}

	for _, l := range lines {
		order.Lines = append(order.Lines, models.OrderLine(l))
	}

	return order, nil
}

func (p *Provider) GetCustomerOrderHistory(ctx context.Context, customerID int64, pageSize int) ([]models.OrderHistoryRow, error) {
	var rows []historyRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT o."Order ID" AS order_id,
		       o."Order Date" AS order_date,
		       COALESCE(SUM(`+lineRevenueSQL+`), 0) AS total
		FROM "Orders" o
		LEFT JOIN "Order Details" d ON d."Order ID" = o."Order ID"
		WHERE o."Customer ID" = $1
		GROUP BY o."Order ID", o."Order Date"
		ORDER BY o."Order Date" DESC NULLS LAST, o."Order ID" DESC
		LIMIT $2`, customerID, store.PageSize(pageSize))
	if err != nil {
		return nil, fmt.Errorf("get customer order history: %w", err)
	}

	history := make([]models.OrderHistoryRow, 0, len(rows))
	for _, r := range rows {
		row := models.OrderHistoryRow{
			OrderID: r.OrderID,
			Total:   store.RoundMoney(r.Total),
		}
		if r.OrderDate.Valid {
			row.OrderDate = r.OrderDate.Time.UTC()
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

	var orderID int64

	err = database.WithRetry(ctx, p.db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		now := p.opts.UTCNow()

		err := tx.QueryRowContext(ctx,
			`INSERT INTO "Orders" ("Customer ID", "Employee ID", "Order Date", "Shipper ID", "Shipping Fee")
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING "Order ID"`,
			nullID(req.CustomerID), nullID(req.EmployeeID), now, nullID(req.ShipperID), req.Freight).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := store.CheckOrderID(orderID); err != nil {
			return err
		}

		for _, item := range items {
			var exists bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM "Products" WHERE "ID" = $1)`,
				item.ProductID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check product exists: %w", err)
			}
			if !exists {
				return fmt.Errorf("product %d: %w", item.ProductID, store.ErrProductNotFound)
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO "Order Details" ("Order ID", "Product ID", "Quantity", "Unit Price", "Discount")
				 VALUES ($1, $2, $3, $4, $5)`,
				orderID, item.ProductID, item.Quantity, item.UnitPrice, item.Discount)
			if err != nil {
				return fmt.Errorf("create order line: %w", err)
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO "Inventory Transactions"
				 ("Transaction Type", "Transaction Created Date", "Product ID", "Quantity", "Customer Order ID", "Comments")
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				allocationType, now, item.ProductID, store.AllocationQuantity(item.Quantity), orderID, models.AllocationComment)
			if err != nil {
				return fmt.Errorf("allocate inventory: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return orderID, nil
}

func (p *Provider) BumpOrderLineQuantity(ctx context.Context, lineOrProductID int64, delta float64) (int64, error) {
	affected, err := p.bump(ctx, `UPDATE "Order Details" SET "Quantity" = "Quantity" + $1 WHERE "ID" = $2`, lineOrProductID, delta)
	if err != nil || affected > 0 {
		return affected, err
	}

	return p.bump(ctx, `UPDATE "Order Details" SET "Quantity" = "Quantity" + $1 WHERE "Product ID" = $2`, lineOrProductID, delta)
}

func (p *Provider) bump(ctx context.Context, query string, id int64, delta float64) (int64, error) {
	result, err := p.db.ExecContext(ctx, query, delta, id)
	if err != nil {
		return 0, fmt.Errorf("bump order line quantity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func (p *Provider) DeleteOrder(ctx context.Context, orderID int64) (bool, error) {
	var found bool

	err := database.WithRetry(ctx, p.db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		found = false

		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT "Order ID" FROM "Orders" WHERE "Order ID" = $1 FOR UPDATE`,
			orderID).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("lock order: %w", err)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT "Product ID", "Quantity" FROM "Order Details" WHERE "Order ID" = $1 ORDER BY "ID"`,
			orderID)
		if err != nil {
			return fmt.Errorf("get order lines: %w", err)
		}

		var reversals []models.InventoryTransaction
		for rows.Next() {
			var productID sql.NullInt64
			var quantity sql.NullFloat64
			if err := rows.Scan(&productID, &quantity); err != nil {
				rows.Close()
				return fmt.Errorf("scan order line: %w", err)
			}
			if !productID.Valid || !quantity.Valid {
				continue
			}
			reversals = append(reversals, models.InventoryTransaction{
				ProductID: productID.Int64,
				Quantity:  math.Abs(quantity.Float64),
			})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		now := p.opts.UTCNow()
		for _, r := range reversals {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO "Inventory Transactions"
				 ("Transaction Type", "Transaction Created Date", "Product ID", "Quantity", "Customer Order ID", "Comments")
				 VALUES ($1, $2, $3, $4, NULL, $5)`,
				p.opts.DeallocationType, now, r.ProductID, r.Quantity, models.DeallocationComment)
			if err != nil {
				return fmt.Errorf("deallocate inventory: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE "Inventory Transactions" SET "Customer Order ID" = NULL
			 WHERE "Customer Order ID" = $1 AND "Comments" = $2`,
			orderID, models.AllocationComment)
		if err != nil {
			return fmt.Errorf("release allocations: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM "Order Details" WHERE "Order ID" = $1`, orderID); err != nil {
			return fmt.Errorf("delete order lines: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM "Orders" WHERE "Order ID" = $1`, orderID); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}

		found = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return found, nil
}
