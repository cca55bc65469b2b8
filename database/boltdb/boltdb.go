// Package boltdb keeps one JSON document per batch in a bolt database file.
// A meta bucket tracks the latest modification and record count, updated in
// the same transaction as every write, so staleness checks read two keys.
package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/statement"
)

var (
	batchBucket = []byte("comment")
	metaBucket  = []byte("meta")
	modifiedKey = []byte("modified")
	countKey    = []byte("count")
)

type document struct {
	database.BatchRef
	CreatedNs  int64  `json:"created_ns"`
	ModifiedNs int64  `json:"modified_ns"`
	NT         string `json:"nt"`
}

func (d document) ref() database.BatchRef {
	ref := d.BatchRef
	ref.Created = time.Unix(0, d.CreatedNs)
	ref.Modified = time.Unix(0, d.ModifiedNs)
	return ref
}

type Bolt struct {
	db    *bolt.DB
	clock database.Clock
}

func New() *Bolt {
	return &Bolt{}
}

func (b *Bolt) Open(path string) error {
	db, err := bolt.Open(path, 0o664, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(batchBucket); err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}
		if _, err := tx.CreateBucketIfNotExists(metaBucket); err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return err
	}
	b.db = db
	return nil
}

func bump(tx *bolt.Tx, modified time.Time, added int) error {
	meta := tx.Bucket(metaBucket)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(modified.UnixNano()))
	if err := meta.Put(modifiedKey, buf[:]); err != nil {
		return err
	}
	if added == 0 {
		return nil
	}
	count := uint64(0)
	if v := meta.Get(countKey); v != nil {
		count = binary.BigEndian.Uint64(v)
	}
	binary.BigEndian.PutUint64(buf[:], count+uint64(added))
	return meta.Put(countKey, buf[:])
}

func (b *Bolt) Append(ctx context.Context, batch statement.Batch) (database.BatchRef, error) {
	if b.db == nil {
		return database.BatchRef{}, database.ErrNotOpen
	}
	if err := batch.Validate(); err != nil {
		return database.BatchRef{}, err
	}
	if err := ctx.Err(); err != nil {
		return database.BatchRef{}, err
	}
	ref := database.RefFor(batch)
	nt, err := statement.Marshal(batch)
	if err != nil {
		return database.BatchRef{}, err
	}
	ref.Modified = b.clock.Next()
	doc, err := json.Marshal(document{
		BatchRef:   ref,
		CreatedNs:  ref.Created.UnixNano(),
		ModifiedNs: ref.Modified.UnixNano(),
		NT:         string(nt),
	})
	if err != nil {
		return database.BatchRef{}, err
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(batchBucket)
		if bk.Get([]byte(ref.Name)) != nil {
			return fmt.Errorf("batch %s already exists", ref.Name)
		}
		if err := bk.Put([]byte(ref.Name), doc); err != nil {
			return err
		}
		return bump(tx, ref.Modified, 1)
	})
	if err != nil {
		return database.BatchRef{}, err
	}
	return ref, nil
}

func (b *Bolt) each(fn func(d document) error) error {
	if b.db == nil {
		return database.ErrNotOpen
	}
	return b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(batchBucket).ForEach(func(k, v []byte) error {
			var d document
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("batch %s: %w", k, err)
			}
			return fn(d)
		})
	})
}

func (b *Bolt) Enumerate(ctx context.Context) ([]database.BatchRef, error) {
	var refs []database.BatchRef
	err := b.each(func(d document) error {
		refs = append(refs, d.ref())
		return nil
	})
	return refs, err
}

func (b *Bolt) Staleness(ctx context.Context) (database.Token, error) {
	if b.db == nil {
		return database.Token{}, database.ErrNotOpen
	}
	var tok database.Token
	err := b.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if v := meta.Get(modifiedKey); v != nil {
			tok.Modified = time.Unix(0, int64(binary.BigEndian.Uint64(v)))
		}
		if v := meta.Get(countKey); v != nil {
			tok.Count = int(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	return tok, err
}

func (b *Bolt) ReadAll(ctx context.Context) ([]statement.Statement, error) {
	var all []statement.Statement
	err := b.each(func(d document) error {
		batch, err := statement.Unmarshal([]byte(d.NT))
		if err != nil {
			return fmt.Errorf("batch %s: %w", d.Name, err)
		}
		all = append(all, batch.Statements...)
		return nil
	})
	return all, err
}

func (b *Bolt) Classify(ctx context.Context, comment string, class database.Class) error {
	if b.db == nil {
		return database.ErrNotOpen
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(batchBucket)
		c := bk.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var d document
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("batch %s: %w", k, err)
			}
			if d.Comment != comment {
				continue
			}
			modified := b.clock.Next()
			d.Class = class
			d.ModifiedNs = modified.UnixNano()
			doc, err := json.Marshal(d)
			if err != nil {
				return err
			}
			if err := bk.Put(append([]byte(nil), k...), doc); err != nil {
				return err
			}
			return bump(tx, modified, 0)
		}
		return fmt.Errorf("comment %s: %w", comment, database.ErrNotFound)
	})
}

func (b *Bolt) Classes(ctx context.Context) (map[string]database.Class, error) {
	classes := make(map[string]database.Class)
	err := b.each(func(d document) error {
		if d.Class != database.ClassNone {
			classes[d.Comment] = d.Class
		}
		return nil
	})
	return classes, err
}

func (b *Bolt) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
