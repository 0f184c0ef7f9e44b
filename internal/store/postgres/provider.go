// Package postgres implements store.Provider on PostgreSQL. Multi-statement
// writes run in one native transaction that is retried on serialization
// failures and deadlocks.
package postgres

import (
	"github.com/jmoiron/sqlx"
	"github.com/safar/go-order-store/internal/store"
)

// lineRevenueSQL is the discounted revenue of the order line aliased d.
const lineRevenueSQL = `COALESCE(d."Unit Price", 0)::numeric * COALESCE(d."Quantity", 0)::numeric * (1 - COALESCE(d."Discount", 0))::numeric`

type Provider struct {
	db   *sqlx.DB
	opts store.Options
}

var _ store.Provider = (*Provider)(nil)

func New(db *sqlx.DB, opts store.Options) *Provider {
	return &Provider{db: db, opts: opts.WithDefaults()}
}

// nullID stores absent references as NULL.
func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
