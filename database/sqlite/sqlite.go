package sqlite

import (
	"github.com/drewp/commentserve/database/sqldb"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type SQLite struct {
	*sqldb.DB
}

func New() *SQLite {
	return &SQLite{sqldb.New("sqlite", sqldb.Schema)}
}

// Open accepts a file path or a modernc.org/sqlite DSN such as
// "file:comments.db?_pragma=busy_timeout(5000)".
func (m *SQLite) Open(dsn string) error {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return err
	}
	// A single connection keeps ":memory:" databases shared and avoids
	// SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return err
	}
	return m.Use(db)
}
