// Package legacy implements store.Provider on a file-based relational engine
// reached through a generic database/sql driver, typically ODBC against an
// Access database.
//
// The engine takes positional ? markers and supports driver transactions,
// but has no LIMIT, COALESCE or date truncation reachable through the
// driver. Null defaults, paging, day bucketing and revenue are therefore
// computed here rather than in SQL. New order ids are read back with the
// configured identity query (SELECT @@IDENTITY on Access).
package legacy

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/go-order-store/internal/store"
	"github.com/shopspring/decimal"
)

type Provider struct {
	db            *sqlx.DB
	identityQuery string
	opts          store.Options
}

var _ store.Provider = (*Provider)(nil)

func New(db *sqlx.DB, identityQuery string, opts store.Options) *Provider {
	return &Provider{db: db, identityQuery: identityQuery, opts: opts.WithDefaults()}
}

// now has the one-second resolution of the engine's date columns.
func (p *Provider) now() time.Time {
	return p.opts.UTCNow().Truncate(time.Second)
}

type revenueRow struct {
	UnitPrice decimal.NullDecimal `db:"unit_price"`
	Quantity  sql.NullFloat64     `db:"quantity"`
	Discount  sql.NullFloat64     `db:"discount"`
}

// revenue reads null parts as 0. A row from an outer join without a line
// yields 0.
func (r revenueRow) revenue() decimal.Decimal {
	if !r.UnitPrice.Valid {
		return decimal.Zero
	}
	return store.LineRevenue(r.UnitPrice.Decimal, r.Quantity.Float64, r.Discount.Float64)
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func utcTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
