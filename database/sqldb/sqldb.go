// Package sqldb is the document-style statement log on top of database/sql:
// one row per batch with the serialized statements and the denormalized
// topic, comment and created columns used for staleness and sorting.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/statement"
	"github.com/jmoiron/sqlx"
)

// Schema is the portable table layout. Timestamps are unix nanoseconds so
// aggregates keep their type on every driver.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS comment (
		name     TEXT PRIMARY KEY,
		ctx      TEXT NOT NULL,
		topic    TEXT NOT NULL,
		comment  TEXT NOT NULL,
		created  BIGINT NOT NULL,
		modified BIGINT NOT NULL,
		class    TEXT NOT NULL DEFAULT '',
		nt       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS comment_topic ON comment (topic)`,
	`CREATE INDEX IF NOT EXISTS comment_comment ON comment (comment)`,
}

type DB struct {
	driver string
	schema []string
	db     *sqlx.DB
	clock  database.Clock
}

type row struct {
	database.BatchRef
	CreatedNs  int64  `db:"created"`
	ModifiedNs int64  `db:"modified"`
	NT         string `db:"nt"`
}

func (r row) ref() database.BatchRef {
	ref := r.BatchRef
	ref.Created = time.Unix(0, r.CreatedNs)
	ref.Modified = time.Unix(0, r.ModifiedNs)
	return ref
}

func New(driver string, schema []string) *DB {
	return &DB{driver: driver, schema: schema}
}

func (d *DB) Open(dsn string) error {
	db, err := sqlx.Open(d.driver, dsn)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}
	return d.Use(db)
}

// Use adopts an already opened connection and applies the schema.
func (d *DB) Use(db *sqlx.DB) error {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	d.db = db
	return nil
}

func (d *DB) Append(ctx context.Context, b statement.Batch) (database.BatchRef, error) {
	if d.db == nil {
		return database.BatchRef{}, database.ErrNotOpen
	}
	if err := b.Validate(); err != nil {
		return database.BatchRef{}, err
	}
	ref := database.RefFor(b)
	nt, err := statement.Marshal(b)
	if err != nil {
		return database.BatchRef{}, err
	}
	ref.Modified = d.clock.Next()
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return database.BatchRef{}, err
	}
	defer tx.Rollback()
	_, err = tx.NamedExecContext(ctx, `INSERT INTO comment (
			name,
			ctx,
			topic,
			comment,
			created,
			modified,
			class,
			nt
		) VALUES (
			:name,
			:ctx,
			:topic,
			:comment,
			:created,
			:modified,
			:class,
			:nt
		)`,
		map[string]interface{}{
			"name":     ref.Name,
			"ctx":      ref.Context,
			"topic":    ref.Topic,
			"comment":  ref.Comment,
			"created":  ref.Created.UnixNano(),
			"modified": ref.Modified.UnixNano(),
			"class":    string(database.ClassNone),
			"nt":       string(nt),
		})
	if err != nil {
		return database.BatchRef{}, fmt.Errorf("insert %s: %w", ref.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return database.BatchRef{}, err
	}
	return ref, nil
}

func (d *DB) Enumerate(ctx context.Context) ([]database.BatchRef, error) {
	if d.db == nil {
		return nil, database.ErrNotOpen
	}
	var rows []row
	err := d.db.SelectContext(ctx, &rows, "SELECT name, ctx, topic, comment, created, modified, class, '' AS nt FROM comment ORDER BY created")
	if err != nil {
		return nil, err
	}
	refs := make([]database.BatchRef, len(rows))
	for i, r := range rows {
		refs[i] = r.ref()
	}
	return refs, nil
}

func (d *DB) Staleness(ctx context.Context) (database.Token, error) {
	if d.db == nil {
		return database.Token{}, database.ErrNotOpen
	}
	var s struct {
		Modified int64 `db:"modified"`
		Count    int   `db:"count"`
	}
	err := d.db.GetContext(ctx, &s, "SELECT COALESCE(MAX(modified), 0) AS modified, COUNT(*) AS count FROM comment")
	if err != nil {
		return database.Token{}, err
	}
	tok := database.Token{Count: s.Count}
	if s.Modified != 0 {
		tok.Modified = time.Unix(0, s.Modified)
	}
	return tok, nil
}

func (d *DB) ReadAll(ctx context.Context) ([]statement.Statement, error) {
	if d.db == nil {
		return nil, database.ErrNotOpen
	}
	rows, err := d.db.QueryxContext(ctx, "SELECT name, nt FROM comment ORDER BY created")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var all []statement.Statement
	for rows.Next() {
		var name, nt string
		if err := rows.Scan(&name, &nt); err != nil {
			return nil, err
		}
		b, err := statement.Unmarshal([]byte(nt))
		if err != nil {
			return nil, fmt.Errorf("batch %s: %w", name, err)
		}
		all = append(all, b.Statements...)
	}
	return all, rows.Err()
}

func (d *DB) Classify(ctx context.Context, comment string, class database.Class) error {
	if d.db == nil {
		return database.ErrNotOpen
	}
	res, err := d.db.ExecContext(ctx, d.db.Rebind("UPDATE comment SET class = ?, modified = ? WHERE comment = ?"),
		string(class), d.clock.Next().UnixNano(), comment)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("comment %s: %w", comment, database.ErrNotFound)
	}
	return nil
}

func (d *DB) Classes(ctx context.Context) (map[string]database.Class, error) {
	if d.db == nil {
		return nil, database.ErrNotOpen
	}
	var rows []struct {
		Comment string `db:"comment"`
		Class   string `db:"class"`
	}
	err := d.db.SelectContext(ctx, &rows, d.db.Rebind("SELECT comment, class FROM comment WHERE class <> ?"), string(database.ClassNone))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	classes := make(map[string]database.Class, len(rows))
	for _, r := range rows {
		classes[r.Comment] = database.Class(r.Class)
	}
	return classes, nil
}

// Truncate removes every batch. Used to reset throwaway test databases.
func (d *DB) Truncate(ctx context.Context) error {
	if d.db == nil {
		return database.ErrNotOpen
	}
	_, err := d.db.ExecContext(ctx, "DELETE FROM comment")
	return err
}

func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}
