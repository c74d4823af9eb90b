package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/kinhub/kinhub-server/errors"
	"go.uber.org/zap"
)

// Mall bundles all database access. Services call it instead of touching the
// connection pool themselves.
type Mall struct {
	logger *zap.Logger
	// db is the connection pool queries run on.
	db *pgxpool.Pool
	// dialect builds queries for PostgreSQL.
	dialect goqu.DialectWrapper
}

// NewMall creates a Mall on the given connection pool, building queries with
// the PostgreSQL goqu dialect.
func NewMall(logger *zap.Logger, db *pgxpool.Pool) *Mall {
	return &Mall{
		logger:  logger,
		db:      db,
		dialect: goqu.Dialect("postgres"),
	}
}

// rollbackTx rolls back the given pgx.Tx. A failed rollback is only logged,
// together with the reason the rollback was requested, because the caller
// still needs to return the original error.
func (m *Mall) rollbackTx(ctx context.Context, tx pgx.Tx, reason string) {
	err := tx.Rollback(ctx)
	if err != nil {
		errors.Log(m.logger, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindDBRollback,
			Message: "rollback tx",
			Err:     err,
			Details: errors.Details{"rollbackReason": reason},
		})
	}
}
