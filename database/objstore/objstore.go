// Package objstore keeps batches as objects in an S3 compatible bucket.
// A PUT is atomic, so a batch object is either complete or absent.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/statement"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	batchExt = ".nt"
	classExt = ".class"
)

type ObjStore struct {
	client *minio.Client
	bucket string
	prefix string
}

func New() *ObjStore {
	return &ObjStore{}
}

// Location is a parsed s3://key:secret@host[:port]/bucket[/prefix] DSN.
type Location struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

func ParseDSN(dsn string) (Location, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return Location{}, err
	}
	if u.Scheme != "s3" {
		return Location{}, fmt.Errorf("object store dsn must start with s3://, got %q", u.Scheme)
	}
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if parts[0] == "" {
		return Location{}, fmt.Errorf("object store dsn %q has no bucket", dsn)
	}
	loc := Location{Endpoint: u.Host, Bucket: parts[0], Secure: true}
	if len(parts) == 2 && parts[1] != "" {
		loc.Prefix = strings.TrimSuffix(parts[1], "/") + "/"
	}
	if u.User != nil {
		loc.AccessKey = u.User.Username()
		loc.SecretKey, _ = u.User.Password()
	}
	if s := u.Query().Get("secure"); s != "" {
		if loc.Secure, err = strconv.ParseBool(s); err != nil {
			return Location{}, fmt.Errorf("secure: %w", err)
		}
	}
	return loc, nil
}

func (o *ObjStore) Open(dsn string) error {
	loc, err := ParseDSN(dsn)
	if err != nil {
		return err
	}
	client, err := minio.New(loc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(loc.AccessKey, loc.SecretKey, ""),
		Secure: loc.Secure,
	})
	if err != nil {
		return err
	}
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, loc.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", loc.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, loc.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", loc.Bucket, err)
		}
	}
	o.client, o.bucket, o.prefix = client, loc.Bucket, loc.Prefix
	return nil
}

func (o *ObjStore) put(ctx context.Context, key string, data []byte, meta map[string]string) (minio.UploadInfo, error) {
	return o.client.PutObject(ctx, o.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  statement.ContentType,
		UserMetadata: meta,
	})
}

func (o *ObjStore) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := o.client.GetObject(ctx, o.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (o *ObjStore) Append(ctx context.Context, b statement.Batch) (database.BatchRef, error) {
	if o.client == nil {
		return database.BatchRef{}, database.ErrNotOpen
	}
	if err := b.Validate(); err != nil {
		return database.BatchRef{}, err
	}
	ref := database.RefFor(b)
	data, err := statement.Marshal(b)
	if err != nil {
		return database.BatchRef{}, err
	}
	key := o.prefix + ref.Name + batchExt
	_, err = o.put(ctx, key, data, map[string]string{
		"topic":   ref.Topic,
		"context": ref.Context,
		"comment": ref.Comment,
	})
	if err != nil {
		return database.BatchRef{}, fmt.Errorf("put %s: %w", key, err)
	}
	if info, err := o.client.StatObject(ctx, o.bucket, key, minio.StatObjectOptions{}); err == nil {
		ref.Modified = info.LastModified
	}
	return ref, nil
}

// list returns the objects with the given extension, sorted by key.
func (o *ObjStore) list(ctx context.Context, ext string) ([]minio.ObjectInfo, error) {
	if o.client == nil {
		return nil, database.ErrNotOpen
	}
	var objs []minio.ObjectInfo
	for obj := range o.client.ListObjects(ctx, o.bucket, minio.ListObjectsOptions{Prefix: o.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if path.Ext(obj.Key) == ext {
			objs = append(objs, obj)
		}
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
	return objs, nil
}

func (o *ObjStore) readBatch(ctx context.Context, key string) (statement.Batch, error) {
	data, err := o.get(ctx, key)
	if err != nil {
		return statement.Batch{}, err
	}
	b, err := statement.Unmarshal(data)
	if err != nil {
		return b, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func (o *ObjStore) Enumerate(ctx context.Context) ([]database.BatchRef, error) {
	objs, err := o.list(ctx, batchExt)
	if err != nil {
		return nil, err
	}
	classes, err := o.Classes(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]database.BatchRef, 0, len(objs))
	for _, obj := range objs {
		b, err := o.readBatch(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		ref := database.BatchRef{
			Name:     strings.TrimSuffix(strings.TrimPrefix(obj.Key, o.prefix), batchExt),
			Context:  b.Context.Value,
			Topic:    b.Topic().Value,
			Comment:  b.Comment().Value,
			Created:  b.CommentCreated(),
			Modified: obj.LastModified,
		}
		ref.Class = classes[ref.Comment]
		refs = append(refs, ref)
	}
	return refs, nil
}

func (o *ObjStore) Staleness(ctx context.Context) (database.Token, error) {
	var tok database.Token
	for _, ext := range []string{batchExt, classExt} {
		objs, err := o.list(ctx, ext)
		if err != nil {
			return tok, err
		}
		for _, obj := range objs {
			tok = tok.Include(obj.LastModified)
		}
	}
	return tok, nil
}

func (o *ObjStore) ReadAll(ctx context.Context) ([]statement.Statement, error) {
	objs, err := o.list(ctx, batchExt)
	if err != nil {
		return nil, err
	}
	var all []statement.Statement
	for _, obj := range objs {
		b, err := o.readBatch(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		all = append(all, b.Statements...)
	}
	return all, nil
}

func (o *ObjStore) Classify(ctx context.Context, comment string, class database.Class) error {
	refs, err := o.Enumerate(ctx)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if ref.Comment != comment {
			continue
		}
		_, err := o.put(ctx, o.prefix+ref.Name+classExt, []byte(comment+"\t"+string(class)+"\n"), nil)
		return err
	}
	return fmt.Errorf("comment %s: %w", comment, database.ErrNotFound)
}

func (o *ObjStore) Classes(ctx context.Context) (map[string]database.Class, error) {
	objs, err := o.list(ctx, classExt)
	if err != nil {
		return nil, err
	}
	classes := make(map[string]database.Class)
	for _, obj := range objs {
		data, err := o.get(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		comment, c, ok := strings.Cut(strings.TrimSpace(string(data)), "\t")
		if !ok {
			continue
		}
		class, err := database.ParseClass(c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", obj.Key, err)
		}
		if class != database.ClassNone {
			classes[comment] = class
		}
	}
	return classes, nil
}

func (o *ObjStore) Close() error {
	return nil
}
