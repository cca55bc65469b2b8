package objstore

import (
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/database/logtest"
)

func TestImplementsDatabase(t *testing.T) {
	inter := reflect.TypeOf((*database.Log)(nil)).Elem()

	if !reflect.TypeOf(New()).Implements(inter) {
		t.Errorf("ObjStore does not implement the database interface")
	}
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn     string
		want    Location
		wantErr bool
	}{
		{
			dsn: "s3://key:secret@localhost:9000/comments?secure=false",
			want: Location{
				Endpoint:  "localhost:9000",
				AccessKey: "key",
				SecretKey: "secret",
				Bucket:    "comments",
			},
		},
		{
			dsn: "s3://key:secret@s3.example.com/comments/blog/",
			want: Location{
				Endpoint:  "s3.example.com",
				AccessKey: "key",
				SecretKey: "secret",
				Bucket:    "comments",
				Prefix:    "blog/",
				Secure:    true,
			},
		},
		{dsn: "http://localhost/comments", wantErr: true},
		{dsn: "s3://localhost:9000/", wantErr: true},
		{dsn: "s3://localhost/b?secure=maybe", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			got, err := ParseDSN(tt.dsn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDSN() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseDSN() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// Set COMMENTSERVE_TEST_S3 to an s3:// DSN of a scratch minio server to run
// this; every subtest gets its own prefix.
func TestObjStoreLog(t *testing.T) {
	dsn := os.Getenv("COMMENTSERVE_TEST_S3")
	if dsn == "" {
		t.Skip("COMMENTSERVE_TEST_S3 not set")
	}
	logtest.Run(t, func(t *testing.T) database.Log {
		o := New()
		if err := o.Open(dsn); err != nil {
			t.Fatal(err)
		}
		o.prefix += fmt.Sprintf("test-%d/", time.Now().UnixNano())
		return o
	})
}
