package postgres

import (
	"github.com/drewp/commentserve/database/sqldb"
	_ "github.com/lib/pq"
)

type Postgres struct {
	*sqldb.DB
}

// New returns a log that stores batches in postgres. Open takes a lib/pq
// connection string.
func New() *Postgres {
	return &Postgres{sqldb.New("postgres", sqldb.Schema)}
}
