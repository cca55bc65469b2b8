package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/database/logtest"
)

func openTemp(t *testing.T) *File {
	f := New()
	if err := f.Open(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestImplementsDatabase(t *testing.T) {
	inter := reflect.TypeOf((*database.Log)(nil)).Elem()

	if !reflect.TypeOf(New()).Implements(inter) {
		t.Errorf("File does not implement the database interface")
	}
}

func TestFileLog(t *testing.T) {
	logtest.Run(t, func(t *testing.T) database.Log {
		return openTemp(t)
	})
}

func TestAppendNamesFileAfterParent(t *testing.T) {
	f := openTemp(t)
	ref, err := f.Append(context.Background(), logtest.CommentBatch("http://example.com/post/hello", 1))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ref.Name, "post-hello-") {
		t.Errorf("Name = %q", ref.Name)
	}
	if _, err := os.Stat(filepath.Join(f.Dir(), ref.Name+".nt")); err != nil {
		t.Errorf("batch file missing: %v", err)
	}
}

func TestFailedSyncLeavesNoPartialBatch(t *testing.T) {
	f := openTemp(t)
	boom := errors.New("no space left on device")
	f.syncFile = func(*os.File) error { return boom }
	ctx := context.Background()
	if _, err := f.Append(ctx, logtest.CommentBatch("http://example.com/post/1", 1)); !errors.Is(err, boom) {
		t.Fatalf("Append() = %v, want %v", err, boom)
	}
	entries, err := os.ReadDir(f.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("left %d files behind", len(entries))
	}
	stmts, err := f.ReadAll(ctx)
	if err != nil || len(stmts) != 0 {
		t.Errorf("ReadAll() = %d statements, %v", len(stmts), err)
	}
}

func TestReadAllIgnoresTempFiles(t *testing.T) {
	f := openTemp(t)
	if err := os.WriteFile(filepath.Join(f.Dir(), ".tmp-post-x.nt-123"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ReadAll(context.Background()); err != nil {
		t.Errorf("ReadAll() = %v", err)
	}
}

func TestReadAllReportsCorruptFile(t *testing.T) {
	f := openTemp(t)
	if err := os.WriteFile(filepath.Join(f.Dir(), "post-bad.nt"), []byte("<broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := f.ReadAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "post-bad.nt") {
		t.Errorf("ReadAll() = %v, want an error naming the file", err)
	}
}

func TestUnopened(t *testing.T) {
	if _, err := New().Staleness(context.Background()); !errors.Is(err, database.ErrNotOpen) {
		t.Errorf("Staleness() = %v, want ErrNotOpen", err)
	}
}

func TestBatches(t *testing.T) {
	ctx := context.Background()
	f := openTemp(t)
	for i := 2; i >= 1; i-- {
		if _, err := f.Append(ctx, logtest.CommentBatch("http://example.com/post/hello", i)); err != nil {
			t.Fatal(err)
		}
	}
	batches, err := f.Batches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 2 {
		t.Fatalf("Batches() returned %d batches, want 2", len(batches))
	}
	want := logtest.CommentBatch("http://example.com/post/hello", 1)
	if batches[0].Comment() != want.Comment() {
		t.Errorf("first batch is %s, want %s", batches[0].Comment(), want.Comment())
	}
	if !batches[0].Created.Equal(want.CommentCreated()) {
		t.Errorf("Created = %s, want %s", batches[0].Created, want.CommentCreated())
	}
	if len(batches[0].Statements) != len(want.Statements) {
		t.Errorf("got %d statements, want %d", len(batches[0].Statements), len(want.Statements))
	}
}
