package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/drewp/commentserve/statement"
	"github.com/gosimple/slug"
)

// Log is the append-only statement log. Every backend stores one record per
// batch and never exposes a partially written batch.
type Log interface {
	Open(dsn string) error
	Append(ctx context.Context, b statement.Batch) (BatchRef, error)
	Enumerate(ctx context.Context) ([]BatchRef, error)
	Staleness(ctx context.Context) (Token, error)
	ReadAll(ctx context.Context) ([]statement.Statement, error)
	Classify(ctx context.Context, comment string, class Class) error
	Classes(ctx context.Context) (map[string]Class, error)
	Close() error
}

var (
	ErrNotFound = errors.New("not found")
	ErrNotOpen  = errors.New("log is not open")
)

// Class is the out-of-band classification of a comment.
type Class string

const (
	ClassNone Class = ""
	ClassHam  Class = "ham"
	ClassSpam Class = "spam"
)

func ParseClass(s string) (Class, error) {
	switch c := Class(strings.ToLower(strings.TrimSpace(s))); c {
	case ClassNone, ClassHam, ClassSpam:
		return c, nil
	}
	return ClassNone, fmt.Errorf("unknown class %q", s)
}

// BatchRef describes a stored batch without its statements.
type BatchRef struct {
	Name     string    `db:"name" json:"name"`
	Context  string    `db:"ctx" json:"ctx"`
	Topic    string    `db:"topic" json:"topic"`
	Comment  string    `db:"comment" json:"comment"`
	Created  time.Time `db:"-" json:"created"`
	Modified time.Time `db:"-" json:"modified"`
	Class    Class     `db:"class" json:"class,omitempty"`
}

// RefFor derives the record fields of a batch.
func RefFor(b statement.Batch) BatchRef {
	created := b.Created
	if created.IsZero() {
		created = b.CommentCreated()
	}
	return BatchRef{
		Name:    BatchName(b.Topic().Value, created),
		Context: b.Context.Value,
		Topic:   b.Topic().Value,
		Comment: b.Comment().Value,
		Created: created,
	}
}

// BatchName is post-<slug of the parent's last path segment>-<timestamp>.
func BatchName(parent string, created time.Time) string {
	trimmed := strings.TrimRight(parent, "/")
	s := slug.Make(trimmed[strings.LastIndex(trimmed, "/")+1:])
	if s == "" {
		s = "comment"
	}
	return "post-" + s + "-" + created.UTC().Format("20060102T150405.000000Z")
}

// Token summarizes the state of a log. A later write always yields a token
// that compares greater than an earlier one.
type Token struct {
	Modified time.Time
	Count    int
}

func (t Token) Compare(o Token) int {
	switch {
	case t.Modified.Before(o.Modified):
		return -1
	case t.Modified.After(o.Modified):
		return 1
	case t.Count < o.Count:
		return -1
	case t.Count > o.Count:
		return 1
	}
	return 0
}

func (t Token) After(o Token) bool { return t.Compare(o) > 0 }
func (t Token) Equal(o Token) bool { return t.Compare(o) == 0 }
func (t Token) IsZero() bool       { return t.Modified.IsZero() && t.Count == 0 }

// Key is a stable string form of the token.
func (t Token) Key() string {
	return fmt.Sprintf("%d.%d", t.Modified.UnixNano(), t.Count)
}

// Include folds another modification time into the token, counting it as
// one more source.
func (t Token) Include(modified time.Time) Token {
	if modified.After(t.Modified) {
		t.Modified = modified
	}
	t.Count++
	return t
}

func (t Token) String() string {
	return fmt.Sprintf("%s#%d", t.Modified.UTC().Format(time.RFC3339Nano), t.Count)
}

// Clock hands out strictly increasing timestamps.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	Now  func() time.Time
}

func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	t := now().Round(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// Baseline is the static fact set (e.g. the access list carrying
// foaf:name for registered users) merged into every rebuilt graph.
type Baseline struct {
	path string
}

func NewBaseline(path string) *Baseline {
	return &Baseline{path: path}
}

func (b *Baseline) Path() string {
	return b.path
}

func (b *Baseline) Modified() (time.Time, error) {
	fi, err := os.Stat(b.path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

func (b *Baseline) Read() ([]statement.Statement, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return nil, err
	}
	batch, err := statement.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("baseline %s: %w", b.path, err)
	}
	return batch.Statements, nil
}
