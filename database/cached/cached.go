// Package cached keeps a materialized graph of a statement log plus the
// baseline fact set, rebuilding it only when the log's staleness token
// moves.
package cached

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/graph"
	"github.com/drewp/commentserve/statement"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNoGraph is returned when no graph has ever been built and the current
// rebuild failed.
var ErrNoGraph = errors.New("no graph available")

// Snapshot is one fully built graph. Snapshots are immutable once published.
type Snapshot struct {
	Graph   *graph.Graph
	Classes map[string]database.Class
	Token   database.Token
	Built   time.Time

	generation int64
}

// Class returns the classification of a comment.
func (s *Snapshot) Class(comment string) database.Class {
	return s.Classes[comment]
}

type Option func(*Cached)

func WithBaseline(b *database.Baseline) Option {
	return func(c *Cached) { c.baseline = b }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cached) { c.log = l }
}

// WithTimeout bounds staleness checks and rebuilds.
func WithTimeout(d time.Duration) Option {
	return func(c *Cached) { c.timeout = d }
}

type Cached struct {
	db       database.Log
	baseline *database.Baseline
	log      *zap.Logger
	timeout  time.Duration

	current    atomic.Pointer[Snapshot]
	generation atomic.Int64
	group      singleflight.Group
}

func New(db database.Log, opts ...Option) *Cached {
	c := &Cached{
		db:      db,
		log:     zap.NewNop(),
		timeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Log is the wrapped statement log.
func (c *Cached) Log() database.Log {
	return c.db
}

// Current returns the last published snapshot without checking staleness.
func (c *Cached) Current() *Snapshot {
	return c.current.Load()
}

// Invalidate makes the next Get rebuild even if the token did not move.
func (c *Cached) Invalidate() {
	c.generation.Add(1)
}

func (c *Cached) staleness(ctx context.Context) (database.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	tok, err := c.db.Staleness(ctx)
	if err != nil {
		return tok, err
	}
	if c.baseline != nil {
		mtime, err := c.baseline.Modified()
		if err != nil {
			return tok, fmt.Errorf("baseline %s: %w", c.baseline.Path(), err)
		}
		tok = tok.Include(mtime)
	}
	return tok, nil
}

// Get returns a graph reflecting every batch committed before the call,
// rebuilding when the log changed. When a rebuild fails the previous graph
// keeps being served.
func (c *Cached) Get(ctx context.Context) (*Snapshot, error) {
	cur := c.current.Load()
	gen := c.generation.Load()
	tok, err := c.staleness(ctx)
	if err != nil {
		if cur != nil {
			c.log.Warn("staleness check failed, serving cached graph", zap.Error(err))
			return cur, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrNoGraph, err)
	}
	if cur != nil && cur.generation == gen && cur.Token.Equal(tok) {
		return cur, nil
	}
	key := tok.Key() + "/" + strconv.FormatInt(gen, 10)
	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		return c.rebuild(tok, gen)
	})
	if err != nil {
		if cur := c.current.Load(); cur != nil {
			c.log.Error("rebuild failed, serving cached graph",
				zap.Stringer("token", tok), zap.Stringer("serving", cur.Token), zap.Error(err))
			return cur, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrNoGraph, err)
	}
	if shared {
		c.log.Debug("joined in-flight rebuild", zap.Stringer("token", tok))
	}
	return v.(*Snapshot), nil
}

// rebuild reads the baseline and the whole log into a new graph. It runs
// under its own timeout so a departing caller does not abandon it midway.
func (c *Cached) rebuild(tok database.Token, gen int64) (*Snapshot, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	g := graph.New()
	if c.baseline != nil {
		stmts, err := c.baseline.Read()
		if err != nil {
			return nil, err
		}
		g.Add(stmts...)
	}
	stmts, err := c.db.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	g.Add(stmts...)
	classes, err := c.db.Classes(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Graph:      g,
		Classes:    classes,
		Token:      tok,
		Built:      time.Now(),
		generation: gen,
	}
	c.publish(snap)
	c.log.Info("reloaded comments",
		zap.Int("statements", g.Len()),
		zap.Int("unknown_predicates", g.Unknown()),
		zap.Stringer("token", tok),
		zap.Duration("took", time.Since(start)))
	return snap, nil
}

// publish swaps in snap unless a newer snapshot is already visible.
func (c *Cached) publish(snap *Snapshot) {
	for {
		cur := c.current.Load()
		if cur != nil && (cur.generation > snap.generation ||
			(cur.generation == snap.generation && cur.Token.After(snap.Token))) {
			return
		}
		if c.current.CompareAndSwap(cur, snap) {
			return
		}
	}
}

// Append writes through to the log and invalidates the graph.
func (c *Cached) Append(ctx context.Context, b statement.Batch) (database.BatchRef, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ref, err := c.db.Append(ctx, b)
	if err == nil {
		c.Invalidate()
	}
	return ref, err
}

func (c *Cached) Classify(ctx context.Context, comment string, class database.Class) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := c.db.Classify(ctx, comment, class)
	if err == nil {
		c.Invalidate()
	}
	return err
}

func (c *Cached) Close() error {
	return c.db.Close()
}
