package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx = interface{}

var NoTX interface{}

// TransactionManager executes fn within a database transaction, passing the
// underlying handle as tx. Repositories accept a nil tx for the
// non-transactional path.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
