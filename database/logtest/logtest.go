// Package logtest is the behaviour every database.Log backend shares,
// packaged as a test suite the backends run against themselves.
package logtest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/statement"
)

// CommentBatch builds the batch for comment n on parent.
func CommentBatch(parent string, n int) statement.Batch {
	created := time.Unix(1700000000+int64(n), 0).UTC()
	p := statement.IRI(parent)
	c := statement.IRI(fmt.Sprintf("http://example.com/comment/%d", n))
	user := statement.IRI(fmt.Sprintf("http://example.com/guest/%d", n))
	return statement.Batch{
		Context: statement.IRI(parent + "/comments"),
		Created: created,
		Statements: []statement.Statement{
			statement.New(p, statement.HasReply.Term(), c),
			statement.New(c, statement.Created.Term(), statement.DateTime(created)),
			statement.New(c, statement.HasCreator.Term(), user),
			statement.New(c, statement.ContentEncoded.Term(), statement.XMLLiteral(fmt.Sprintf("<p>comment %d</p>", n))),
		},
	}
}

// Run exercises a freshly opened, empty log.
func Run(t *testing.T, open func(t *testing.T) database.Log) {
	t.Run("empty", func(t *testing.T) {
		l := open(t)
		defer l.Close()
		ctx := context.Background()
		tok, err := l.Staleness(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if tok.Count != 0 {
			t.Errorf("Staleness().Count = %d, want 0", tok.Count)
		}
		refs, err := l.Enumerate(ctx)
		if err != nil || len(refs) != 0 {
			t.Errorf("Enumerate() = %v, %v", refs, err)
		}
		stmts, err := l.ReadAll(ctx)
		if err != nil || len(stmts) != 0 {
			t.Errorf("ReadAll() = %v, %v", stmts, err)
		}
	})

	t.Run("append", func(t *testing.T) {
		l := open(t)
		defer l.Close()
		ctx := context.Background()
		before, err := l.Staleness(ctx)
		if err != nil {
			t.Fatal(err)
		}
		for n := 1; n <= 3; n++ {
			b := CommentBatch("http://example.com/post/1", n)
			ref, err := l.Append(ctx, b)
			if err != nil {
				t.Fatalf("Append(%d) = %v", n, err)
			}
			if ref.Comment != b.Comment().Value || ref.Topic != "http://example.com/post/1" {
				t.Errorf("Append(%d) ref = %+v", n, ref)
			}
			after, err := l.Staleness(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !after.After(before) {
				t.Errorf("token after write %d = %v, not after %v", n, after, before)
			}
			before = after
		}
		refs, err := l.Enumerate(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(refs) != 3 {
			t.Errorf("Enumerate() returned %d refs, want 3", len(refs))
		}
		stmts, err := l.ReadAll(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(stmts) != 12 {
			t.Errorf("ReadAll() returned %d statements, want 12", len(stmts))
		}
	})

	t.Run("rejects empty batch", func(t *testing.T) {
		l := open(t)
		defer l.Close()
		if _, err := l.Append(context.Background(), statement.Batch{}); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("classify", func(t *testing.T) {
		l := open(t)
		defer l.Close()
		ctx := context.Background()
		b := CommentBatch("http://example.com/post/2", 7)
		if _, err := l.Append(ctx, b); err != nil {
			t.Fatal(err)
		}
		before, _ := l.Staleness(ctx)
		if err := l.Classify(ctx, b.Comment().Value, database.ClassSpam); err != nil {
			t.Fatal(err)
		}
		after, _ := l.Staleness(ctx)
		if after.Compare(before) < 0 {
			t.Errorf("token went backwards after classify: %v < %v", after, before)
		}
		classes, err := l.Classes(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if classes[b.Comment().Value] != database.ClassSpam {
			t.Errorf("Classes() = %v", classes)
		}
		stmts, err := l.ReadAll(ctx)
		if err != nil || len(stmts) != 4 {
			t.Errorf("classification changed statements: %d, %v", len(stmts), err)
		}
		err = l.Classify(ctx, "http://example.com/comment/missing", database.ClassSpam)
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("Classify(missing) = %v, want ErrNotFound", err)
		}
	})
}
