package comments

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/database/cached"
	"github.com/drewp/commentserve/statement"
	"go.uber.org/zap"
)

func (s *Store) snapshot(ctx context.Context) (*cached.Snapshot, error) {
	snap, err := s.cache.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return snap, nil
}

// ListComments returns the comments on parent, oldest first. Comments
// that are identical in author name, time and content are listed once.
func (s *Store) ListComments(ctx context.Context, parent string, opts Options) ([]Comment, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	g := snap.Graph
	p := statement.IRI(parent)

	type rowKey struct{ name, when, content string }
	seen := make(map[rowKey]bool)
	var rows []Comment
	for _, c := range g.Objects(p, statement.HasReply.Term()) {
		spam := snap.Class(c.Value) == database.ClassSpam
		if spam && !opts.IncludeSpam {
			continue
		}
		for _, creator := range g.Objects(c, statement.HasCreator.Term()) {
			names := []string{""}
			if found := g.Objects(creator, statement.Name.Term()); len(found) > 0 {
				names = names[:0]
				for _, n := range found {
					names = append(names, n.Value)
				}
			}
			for _, content := range g.Objects(c, statement.ContentEncoded.Term()) {
				for _, when := range g.Objects(c, statement.Created.Term()) {
					for _, name := range names {
						k := rowKey{name, when.Value, content.Value}
						if seen[k] {
							continue
						}
						seen[k] = true
						created, err := when.Time()
						if err != nil {
							s.log.Debug("unparseable comment time", zap.String("comment", c.Value), zap.Error(err))
						}
						rows = append(rows, Comment{
							ID:          c.Value,
							Parent:      parent,
							Creator:     creator.Value,
							CreatorName: name,
							Created:     created,
							Content:     s.sanitizer.Sanitize(content.Value, s.allowSrc),
							Spam:        spam,
						})
					}
				}
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Created.Equal(b.Created) {
			return a.Created.Before(b.Created)
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.CreatorName != b.CreatorName {
			return a.CreatorName < b.CreatorName
		}
		return a.Content < b.Content
	})
	s.log.Debug("listed comments", zap.String("parent", parent), zap.Int("rows", len(rows)))
	return rows, nil
}

// CountComments counts the distinct replies to parent that are not spam.
func (s *Store) CountComments(ctx context.Context, parent string) (int, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return countReplies(snap, statement.IRI(parent)), nil
}

func countReplies(snap *cached.Snapshot, parent statement.Term) int {
	n := 0
	for _, c := range snap.Graph.Objects(parent, statement.HasReply.Term()) {
		if snap.Class(c.Value) != database.ClassSpam {
			n++
		}
	}
	return n
}

// ResolveDisplayName returns the foaf:name of identity, if one is known.
func (s *Store) ResolveDisplayName(ctx context.Context, identity string) (string, bool, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return "", false, err
	}
	name, ok := snap.Graph.Value(statement.IRI(identity), statement.Name.Term())
	if !ok {
		return "", false, nil
	}
	return name.Value, true, nil
}

// Parents lists every resource with at least one visible comment, most
// recently commented first.
func (s *Store) Parents(ctx context.Context) ([]Thread, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	g := snap.Graph
	var threads []Thread
	for _, p := range g.Subjects(statement.HasReply.Term(), statement.Any) {
		t := Thread{Parent: p.Value}
		for _, c := range g.Objects(p, statement.HasReply.Term()) {
			if snap.Class(c.Value) == database.ClassSpam {
				continue
			}
			t.Count++
			if when, ok := g.Value(c, statement.Created.Term()); ok {
				if created, err := when.Time(); err == nil && created.After(t.Last) {
					t.Last = created
				}
			}
		}
		if t.Count > 0 {
			threads = append(threads, t)
		}
	}
	sort.Slice(threads, func(i, j int) bool {
		if !threads[i].Last.Equal(threads[j].Last) {
			return threads[i].Last.After(threads[j].Last)
		}
		return threads[i].Parent < threads[j].Parent
	})
	return threads, nil
}

// Classify marks a comment as ham or spam. Statements are never removed.
func (s *Store) Classify(ctx context.Context, comment string, class database.Class) error {
	if err := s.cache.Classify(ctx, comment, class); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.log.Info("classified comment", zap.String("comment", comment), zap.String("class", string(class)))
	return nil
}
