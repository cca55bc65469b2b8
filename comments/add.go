package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/drewp/commentserve/guard"
	"github.com/drewp/commentserve/statement"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

const probeContent = "test"

// AddComment validates, cleans and stores one comment. All checks run
// before anything is written; the comment and any minted identity are
// stored as one batch.
func (s *Store) AddComment(ctx context.Context, sub Submission) (Ref, error) {
	parent := strings.TrimSpace(sub.Parent)
	if parent == "" {
		return Ref{}, fmt.Errorf("%w: missing parent", ErrValidation)
	}
	if err := statement.CheckIRI(parent); err != nil {
		return Ref{}, fmt.Errorf("%w: parent: %w", ErrValidation, err)
	}
	if sub.Caller != nil && sub.Caller.URI != "" {
		if err := statement.CheckIRI(sub.Caller.URI); err != nil {
			return Ref{}, fmt.Errorf("%w: caller: %w", ErrValidation, err)
		}
	}
	log := s.log.With(zap.String("parent", parent), zap.String("source", sub.SourceAddress))

	if s.reputation != nil && sub.SourceAddress != "" {
		if err := s.reputation.Check(ctx, sub.SourceAddress); err != nil {
			if errors.Is(err, guard.ErrAbuse) {
				log.Warn("rejected comment from listed address", zap.Error(err))
				return Ref{}, fmt.Errorf("%w: %w", ErrAbuse, err)
			}
			log.Warn("reputation check failed", zap.Error(err))
		}
	}

	content := strings.TrimSpace(sub.Content)
	if content == "" {
		return Ref{}, fmt.Errorf("%w: no text", ErrValidation)
	}
	if content == probeContent {
		log.Info("not adding test comment")
		return Ref{Probe: true}, nil
	}

	if err := s.spam.Check(sub.Content); err != nil {
		log.Warn("rejected comment as spam", zap.Error(err))
		return Ref{}, fmt.Errorf("%w: %w", ErrSpam, err)
	}

	html := sub.Content
	if sub.Format == FormatMarkdown {
		html = guard.RenderMarkdown(html)
	}
	html = s.sanitizer.Sanitize(html, s.allowSrc)
	html = strings.ReplaceAll(norm.NFC.String(html), "\r", "")
	if strings.TrimSpace(html) == "" {
		return Ref{}, fmt.Errorf("%w: nothing left after sanitizing", ErrValidation)
	}

	created := s.minter.Now()
	comment := s.minter.Comment(created)
	p := statement.IRI(parent)

	var stmts []statement.Statement
	var user statement.Term
	if sub.Caller != nil && sub.Caller.URI != "" {
		user = statement.IRI(sub.Caller.URI)
	} else {
		var minted []statement.Statement
		user, minted = s.minter.Mint(sub.SourceAddress, sub.Name, sub.Email)
		stmts = append(stmts, minted...)
	}
	stmts = append(stmts,
		statement.New(p, statement.HasReply.Term(), comment),
		statement.New(comment, statement.Created.Term(), statement.DateTime(created)),
		statement.New(comment, statement.HasCreator.Term(), user),
		statement.New(comment, statement.ContentEncoded.Term(), statement.XMLLiteral(html)),
	)

	batch := statement.Batch{
		Context:    statement.IRI(parent + "/comments"),
		Statements: stmts,
		Created:    created,
	}
	if err := batch.Validate(); err != nil {
		return Ref{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if key := throttleKey(sub); s.throttle != nil && key != "" && !s.throttle.Allow(key) {
		return Ref{}, ErrThrottled
	}
	ref, err := s.cache.Append(ctx, batch)
	if err != nil {
		log.Error("storing comment failed", zap.String("comment", comment.Value), zap.Error(err))
		return Ref{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	log.Info("added comment",
		zap.String("comment", comment.Value),
		zap.String("user", user.Value),
		zap.String("batch", ref.Name))

	s.dispatch(parent, user.Value)
	return Ref{ID: comment.Value, User: user.Value, Batch: ref.Name}, nil
}

func throttleKey(sub Submission) string {
	if sub.SourceAddress != "" {
		return sub.SourceAddress
	}
	if sub.Caller != nil {
		return sub.Caller.URI
	}
	return ""
}

// dispatch notifies in the background. The comment is already stored, so
// delivery errors are only logged.
func (s *Store) dispatch(parent, user string) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, parent, user); err != nil {
			s.log.Warn("notification failed",
				zap.String("parent", parent),
				zap.String("user", user),
				zap.Error(err))
		}
	}()
}
