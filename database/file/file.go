// Package file stores every batch as its own N-Quads file in a directory,
// named post-<parent slug>-<timestamp>.nt.
package file

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/statement"
)

const (
	batchExt  = ".nt"
	classExt  = ".class"
	tmpPrefix = ".tmp-"
)

type File struct {
	dir string
	// syncFile flushes a finished temp file. Replaced in tests to simulate
	// a failing disk.
	syncFile func(*os.File) error
}

func New() *File {
	return &File{syncFile: (*os.File).Sync}
}

// Open uses dir as the store, creating it if needed.
func (f *File) Open(dir string) error {
	if dir == "" {
		return fmt.Errorf("file store needs a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f.dir = dir
	return nil
}

func (f *File) Dir() string {
	return f.dir
}

func (f *File) Append(ctx context.Context, b statement.Batch) (database.BatchRef, error) {
	if f.dir == "" {
		return database.BatchRef{}, database.ErrNotOpen
	}
	if err := b.Validate(); err != nil {
		return database.BatchRef{}, err
	}
	if err := ctx.Err(); err != nil {
		return database.BatchRef{}, err
	}
	ref := database.RefFor(b)
	data, err := statement.Marshal(b)
	if err != nil {
		return database.BatchRef{}, err
	}
	path, err := f.writeAtomic(ref.Name+batchExt, data)
	if err != nil {
		return database.BatchRef{}, fmt.Errorf("write %s: %w", ref.Name, err)
	}
	if fi, err := os.Stat(path); err == nil {
		ref.Modified = fi.ModTime()
	}
	return ref, nil
}

// writeAtomic writes data to a temp file in the store directory and renames
// it into place, so readers never see a partial file.
func (f *File) writeAtomic(name string, data []byte) (path string, err error) {
	tmp, err := os.CreateTemp(f.dir, tmpPrefix+name+"-")
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return "", err
	}
	if err = f.syncFile(tmp); err != nil {
		return "", err
	}
	if err = tmp.Close(); err != nil {
		return "", err
	}
	path = filepath.Join(f.dir, name)
	if err = os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

func (f *File) names(ext string) ([]string, error) {
	if f.dir == "" {
		return nil, database.ErrNotOpen
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, tmpPrefix) || filepath.Ext(n) != ext {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (f *File) readBatch(name string) (statement.Batch, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		return statement.Batch{}, err
	}
	b, err := statement.Unmarshal(data)
	if err != nil {
		return b, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}

// Batches reads every stored batch in name order. Created is taken from
// the comment's dcterms:created.
func (f *File) Batches(ctx context.Context) ([]statement.Batch, error) {
	names, err := f.names(batchExt)
	if err != nil {
		return nil, err
	}
	batches := make([]statement.Batch, 0, len(names))
	for _, n := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := f.readBatch(n)
		if err != nil {
			return nil, err
		}
		b.Created = b.CommentCreated()
		batches = append(batches, b)
	}
	return batches, nil
}

func (f *File) Enumerate(ctx context.Context) ([]database.BatchRef, error) {
	names, err := f.names(batchExt)
	if err != nil {
		return nil, err
	}
	classes, err := f.Classes(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]database.BatchRef, 0, len(names))
	for _, n := range names {
		b, err := f.readBatch(n)
		if err != nil {
			return nil, err
		}
		ref := database.BatchRef{
			Name:    strings.TrimSuffix(n, batchExt),
			Context: b.Context.Value,
			Topic:   b.Topic().Value,
			Comment: b.Comment().Value,
			Created: b.CommentCreated(),
		}
		ref.Class = classes[ref.Comment]
		if fi, err := os.Stat(filepath.Join(f.dir, n)); err == nil {
			ref.Modified = fi.ModTime()
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Staleness only stats the files: latest mtime and number of batch and
// classification files.
func (f *File) Staleness(ctx context.Context) (database.Token, error) {
	var tok database.Token
	for _, ext := range []string{batchExt, classExt} {
		names, err := f.names(ext)
		if err != nil {
			return tok, err
		}
		for _, n := range names {
			fi, err := os.Stat(filepath.Join(f.dir, n))
			if err != nil {
				return tok, err
			}
			tok = tok.Include(fi.ModTime())
		}
	}
	return tok, nil
}

func (f *File) ReadAll(ctx context.Context) ([]statement.Statement, error) {
	names, err := f.names(batchExt)
	if err != nil {
		return nil, err
	}
	var all []statement.Statement
	for _, n := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := f.readBatch(n)
		if err != nil {
			return nil, err
		}
		all = append(all, b.Statements...)
	}
	return all, nil
}

// Classify writes a <batch>.class sidecar holding "<comment>\t<class>".
func (f *File) Classify(ctx context.Context, comment string, class database.Class) error {
	refs, err := f.Enumerate(ctx)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if ref.Comment != comment {
			continue
		}
		_, err := f.writeAtomic(ref.Name+classExt, []byte(comment+"\t"+string(class)+"\n"))
		return err
	}
	return fmt.Errorf("comment %s: %w", comment, database.ErrNotFound)
}

func (f *File) Classes(ctx context.Context) (map[string]database.Class, error) {
	names, err := f.names(classExt)
	if err != nil {
		return nil, err
	}
	classes := make(map[string]database.Class)
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(f.dir, n))
		if err != nil {
			return nil, err
		}
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			comment, c, ok := strings.Cut(sc.Text(), "\t")
			if !ok {
				continue
			}
			class, err := database.ParseClass(c)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", n, err)
			}
			if class != database.ClassNone {
				classes[comment] = class
			}
		}
	}
	return classes, nil
}

func (f *File) Close() error {
	return nil
}
