package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a database transaction and passes the
// underlying handle as tx. Repositories accept a nil tx (pool path) and lock
// rows with FOR UPDATE when handed a live transaction.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		p, err := purchases.FindByID(ctx, tx, id)
//		...
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
