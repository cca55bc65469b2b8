package boltdb

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/database/logtest"
)

func TestImplementsDatabase(t *testing.T) {
	inter := reflect.TypeOf((*database.Log)(nil)).Elem()

	if !reflect.TypeOf(New()).Implements(inter) {
		t.Errorf("Bolt does not implement the database interface")
	}
}

func TestBoltLog(t *testing.T) {
	logtest.Run(t, func(t *testing.T) database.Log {
		b := New()
		if err := b.Open(filepath.Join(t.TempDir(), "comments.bolt")); err != nil {
			t.Fatal(err)
		}
		return b
	})
}

func TestStalenessSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comments.bolt")
	ctx := context.Background()
	b := New()
	if err := b.Open(path); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Append(ctx, logtest.CommentBatch("http://example.com/post/1", 1)); err != nil {
		t.Fatal(err)
	}
	want, err := b.Staleness(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b.Close()

	b = New()
	if err := b.Open(path); err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	got, err := b.Staleness(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(want) {
		t.Errorf("Staleness() = %v after reopen, want %v", got, want)
	}
}
