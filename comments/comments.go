// Package comments is the comment store: threaded comments kept as
// statements in a log and read back through a cached graph.
package comments

import (
	"context"
	"sync"
	"time"

	"github.com/drewp/commentserve/database/cached"
	"github.com/drewp/commentserve/guard"
	"github.com/drewp/commentserve/identity"
	"github.com/drewp/commentserve/notify"
	"go.uber.org/zap"
)

// Identity is an already authenticated caller.
type Identity struct {
	URI string
}

// Caller returns the identity for uri, or nil when uri is empty.
func Caller(uri string) *Identity {
	if uri == "" {
		return nil
	}
	return &Identity{URI: uri}
}

type Comment struct {
	ID          string
	Parent      string
	Creator     string
	CreatorName string
	Created     time.Time
	Content     string
	Spam        bool
}

type Submission struct {
	Parent string
	// Caller is nil for a public post; a new identity is minted then.
	Caller        *Identity
	Name          string
	Email         string
	Content       string
	Format        string
	SourceAddress string
}

const FormatMarkdown = "markdown"

// Ref identifies a stored comment. Probe is set, and nothing else, when
// the submission was a smoke test that was not stored.
type Ref struct {
	ID    string
	User  string
	Batch string
	Probe bool
}

type Options struct {
	IncludeSpam bool
}

// Thread summarizes the comments on one parent.
type Thread struct {
	Parent string
	Count  int
	Last   time.Time
}

type Sanitizer interface {
	Sanitize(html string, allowSrc bool) string
}

type SpamChecker interface {
	Check(content string) error
}

type ReputationChecker interface {
	Check(ctx context.Context, sourceAddress string) error
}

type Throttler interface {
	Allow(key string) bool
}

type Store struct {
	cache         *cached.Cached
	minter        *identity.Minter
	sanitizer     Sanitizer
	spam          SpamChecker
	reputation    ReputationChecker
	throttle      Throttler
	notifier      notify.Notifier
	notifyTimeout time.Duration
	allowSrc      bool
	log           *zap.Logger

	pending sync.WaitGroup
}

type Option func(*Store)

func WithMinter(m *identity.Minter) Option {
	return func(s *Store) { s.minter = m }
}

func WithSanitizer(san Sanitizer) Option {
	return func(s *Store) { s.sanitizer = san }
}

func WithSpamChecker(c SpamChecker) Option {
	return func(s *Store) { s.spam = c }
}

func WithReputation(c ReputationChecker) Option {
	return func(s *Store) { s.reputation = c }
}

func WithThrottle(t Throttler) Option {
	return func(s *Store) { s.throttle = t }
}

// WithNotifier sets who hears about new comments and how long delivery
// may take.
func WithNotifier(n notify.Notifier, timeout time.Duration) Option {
	return func(s *Store) {
		s.notifier = n
		if timeout > 0 {
			s.notifyTimeout = timeout
		}
	}
}

// WithImages keeps src attributes in stored and served content.
func WithImages(allow bool) Option {
	return func(s *Store) { s.allowSrc = allow }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

func New(cache *cached.Cached, opts ...Option) *Store {
	s := &Store{
		cache:         cache,
		minter:        identity.NewMinter("", ""),
		sanitizer:     guard.NewSanitizer(),
		spam:          guard.NewContentChecker(),
		notifier:      notify.Nop{},
		notifyTimeout: 10 * time.Second,
		log:           zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Wait blocks until notifications already dispatched have finished.
func (s *Store) Wait() {
	s.pending.Wait()
}
