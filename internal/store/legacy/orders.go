package legacy

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
	ID          int64               `db:"id"`
	CustomerID  sql.NullInt64       `db:"customer_id"`
	EmployeeID  sql.NullInt64       `db:"employee_id"`
	OrderDate   sql.NullTime        `db:"order_date"`
	ShipperID   sql.NullInt64       `db:"shipper_id"`
	ShippingFee decimal.NullDecimal `db:"shipping_fee"`
}

type lineRow struct {
	ID          int64          `db:"id"`
	ProductID   sql.NullInt64  `db:"product_id"`
	ProductName sql.NullString `db:"product_name"`
	revenueRow
}

type historyRow struct {
	OrderID   int64        `db:"order_id"`
	OrderDate sql.NullTime `db:"order_date"`
	revenueRow
}

func (p *Provider) GetOrderWithLines(ctx context.Context, orderID int64) (*models.Order, error) {
	var header orderRow
	err := p.db.GetContext(ctx, &header, `
		SELECT [Order ID] AS id, [Customer ID] AS customer_id, [Employee ID] AS employee_id,
		       [Order Date] AS order_date, [Shipper ID] AS shipper_id, [Shipping Fee] AS shipping_fee
		FROM [Orders]
		WHERE [Order ID] = ?`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	var lines []lineRow
	err = p.db.SelectContext(ctx, &lines, `
		SELECT d.[ID] AS id, d.[Product ID] AS product_id, p.[Product Name] AS product_name,
		       d.[Unit Price] AS unit_price, d.[Quantity] AS quantity, d.[Discount] AS discount
		FROM [Order Details] AS d
		LEFT JOIN [Products] AS p ON p.[ID] = d.[Product ID]
		WHERE d.[Order ID] = ?
		ORDER BY d.[ID]`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}

	order := &models.Order{
		ID:          header.ID,
		CustomerID:  header.CustomerID.Int64,
		EmployeeID:  header.EmployeeID.Int64,
		OrderDate:   utcTime(header.OrderDate),
		ShipperID:   header.ShipperID.Int64,
		ShippingFee: header.ShippingFee.Decimal,
		Lines:       make([]models.OrderLine, 0, len(lines)),
	}

	for _, l := range lines {
		order.Lines = append(order.Lines, models.OrderLine{
			ID:          l.ID,
			OrderID:     header.ID,
			ProductID:   l.ProductID.Int64,
			ProductName: l.ProductName.String,
			UnitPrice:   l.UnitPrice.Decimal,
			Quantity:    l.Quantity.Float64,
			Discount:    l.Discount.Float64,
		})
	}

	return order, nil
}

// GetCustomerOrderHistory streams one row per line, newest order first, and
// stops reading once the page is full.
func (p *Provider) GetCustomerOrderHistory(ctx context.Context, customerID int64, pageSize int) ([]models.OrderHistoryRow, error) {
	limit := store.PageSize(pageSize)

	rows, err := p.db.QueryxContext(ctx, `
		SELECT o.[Order ID] AS order_id, o.[Order Date] AS order_date,
		       d.[Unit Price] AS unit_price, d.[Quantity] AS quantity, d.[Discount] AS discount
		FROM [Orders] AS o
		LEFT JOIN [Order Details] AS d ON d.[Order ID] = o.[Order ID]
		WHERE o.[Customer ID] = ?
		ORDER BY o.[Order Date] DESC, o.[Order ID] DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("get customer order history: %w", err)
	}
	defer rows.Close()

	history := []models.OrderHistoryRow{}
	for rows.Next() {
		var r historyRow
		if err := rows.StructScan(&r); err != nil {
			return nil, fmt.Errorf("scan order history: %w", err)
		}

		n := len(history)
		if n == 0 || history[n-1].OrderID != r.OrderID {
			if n == limit {
				break
			}
			history = append(history, models.OrderHistoryRow{
				OrderID:   r.OrderID,
				OrderDate: utcTime(r.OrderDate),
				Total:     decimal.Zero,
			})
			n++
		}
		history[n-1].Total = history[n-1].Total.Add(r.revenue())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range history {
		history[i].Total = store.RoundMoney(history[i].Total)
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

	err = database.WithTransaction(ctx, p.db, database.DriverTxOptions(), func(tx *sqlx.Tx) error {
		now := p.now()

		_, err := tx.ExecContext(ctx,
			`INSERT INTO [Orders] ([Customer ID], [Employee ID], [Order Date], [Shipper ID], [Shipping Fee])
			 VALUES (?, ?, ?, ?, ?)`,
			nullID(req.CustomerID), nullID(req.EmployeeID), now, nullID(req.ShipperID), req.Freight.InexactFloat64())
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		if err := tx.QueryRowContext(ctx, p.identityQuery).Scan(&orderID); err != nil {
			return fmt.Errorf("read order identity: %w", err)
		}
		if err := store.CheckOrderID(orderID); err != nil {
			return err
		}

		for _, item := range items {
			var count int64
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM [Products] WHERE [ID] = ?`,
				item.ProductID).Scan(&count)
			if err != nil {
				return fmt.Errorf("check product exists: %w", err)
			}
			if count == 0 {
				return fmt.Errorf("product %d: %w", item.ProductID, store.ErrProductNotFound)
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO [Order Details] ([Order ID], [Product ID], [Quantity], [Unit Price], [Discount])
				 VALUES (?, ?, ?, ?, ?)`,
				orderID, item.ProductID, item.Quantity, item.UnitPrice.InexactFloat64(), item.Discount)
			if err != nil {
				return fmt.Errorf("create order line: %w", err)
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO [Inventory Transactions]
				 ([Transaction Type], [Transaction Created Date], [Product ID], [Quantity], [Customer Order ID], [Comments])
				 VALUES (?, ?, ?, ?, ?, ?)`,
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
	affected, err := p.bump(ctx, `UPDATE [Order Details] SET [Quantity] = [Quantity] + ? WHERE [ID] = ?`, lineOrProductID, delta)
	if err != nil || affected > 0 {
		return affected, err
	}

	return p.bump(ctx, `UPDATE [Order Details] SET [Quantity] = [Quantity] + ? WHERE [Product ID] = ?`, lineOrProductID, delta)
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

	err := database.WithTransaction(ctx, p.db, database.DriverTxOptions(), func(tx *sqlx.Tx) error {
		var count int64
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM [Orders] WHERE [Order ID] = ?`, orderID).Scan(&count)
		if err != nil {
			return fmt.Errorf("find order: %w", err)
		}
		if count == 0 {
			return nil
		}

		var lines []struct {
			ProductID sql.NullInt64   `db:"product_id"`
			Quantity  sql.NullFloat64 `db:"quantity"`
		}
		err = tx.SelectContext(ctx, &lines,
			`SELECT [Product ID] AS product_id, [Quantity] AS quantity
			 FROM [Order Details] WHERE [Order ID] = ? ORDER BY [ID]`, orderID)
		if err != nil {
			return fmt.Errorf("get order lines: %w", err)
		}

		now := p.now()
		for _, l := range lines {
			if !l.ProductID.Valid || !l.Quantity.Valid {
				continue
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO [Inventory Transactions]
				 ([Transaction Type], [Transaction Created Date], [Product ID], [Quantity], [Customer Order ID], [Comments])
				 VALUES (?, ?, ?, ?, NULL, ?)`,
				p.opts.DeallocationType, now, l.ProductID.Int64, math.Abs(l.Quantity.Float64), models.DeallocationComment)
			if err != nil {
				return fmt.Errorf("deallocate inventory: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE [Inventory Transactions] SET [Customer Order ID] = NULL
			 WHERE [Customer Order ID] = ? AND [Comments] = ?`,
			orderID, models.AllocationComment)
		if err != nil {
			return fmt.Errorf("release allocations: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM [Order Details] WHERE [Order ID] = ?`, orderID); err != nil {
			return fmt.Errorf("delete order lines: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM [Orders] WHERE [Order ID] = ?`, orderID); err != nil {
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
