package core

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx
	DBExecutor interface {
		sqlx.ExtContext

		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
		PingContext(ctx context.Context) error
		Close() error
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}
)

var (
	_ DB           = (*sqlx.DB)(nil)
	_ DBTransactor = (*sqlx.Tx)(nil)
)

// Page is a limit/offset window over an ordered result set.
type Page struct {
	Limit  int `query:"limit" json:"limit"`
	Offset int `query:"offset" json:"offset"`
}

// Clean bounds the Page: a non-positive limit falls back to `def`, limits above `max` are capped
// and negative offsets are reset.
func (p *Page) Clean(def, max int) {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if max > 0 && p.Limit > max {
		p.Limit = max
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}
