package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

type fakePutter struct {
	err error

	bucket, key, sha, contentType string
	size                          int64
	body                          []byte
}

func (f *fakePutter) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, sha, contentType string) error {
	f.bucket, f.key, f.sha, f.contentType, f.size = bucket, key, sha, contentType, size
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.body = data
	return f.err
}

func bundleDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "3f1c2b7a-bundle")
	files := map[string]string{
		"index.html":              "<html></html>",
		"app-config.json":         `{"upa": "5/1/1"}`,
		"heatmap/index.html":      "<html>heat</html>",
		"heatmap/app-config.json": `{"upa": "5/1/1"}`,
	}
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestUpload(t *testing.T) {
	dir := bundleDir(t)
	putter := &fakePutter{}
	u, err := New(putter, "reports", "lakedash/")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	handle, err := u.Upload(context.Background(), dir, "zip")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if handle != "lakedash/3f1c2b7a-bundle.zip" || putter.key != handle {
		t.Fatalf("handle = %q key = %q", handle, putter.key)
	}
	if putter.bucket != "reports" || putter.contentType != "application/zip" {
		t.Fatalf("bucket = %q contentType = %q", putter.bucket, putter.contentType)
	}
	if putter.size != int64(len(putter.body)) {
		t.Fatalf("size = %d, body = %d bytes", putter.size, len(putter.body))
	}
	sum := sha256.Sum256(putter.body)
	if putter.sha != hex.EncodeToString(sum[:]) {
		t.Fatalf("sha256 = %s, want %x", putter.sha, sum)
	}

	zr, err := zip.NewReader(bytes.NewReader(putter.body), int64(len(putter.body)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	want := []string{"app-config.json", "heatmap/", "heatmap/app-config.json", "heatmap/index.html", "index.html"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("archive entries = %v, want %v", names, want)
	}
}

func TestUploadErrors(t *testing.T) {
	dir := bundleDir(t)

	tests := []struct {
		name   string
		putter *fakePutter
		dir    string
		pack   string
		want   string
	}{
		{name: "unsupported pack", putter: &fakePutter{}, dir: dir, pack: "targz", want: "unsupported pack"},
		{name: "missing dir", putter: &fakePutter{}, dir: filepath.Join(dir, "absent"), pack: "zip", want: "archive"},
		{name: "put fails", putter: &fakePutter{err: errors.New("access denied")}, dir: dir, pack: "zip", want: "access denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := New(tt.putter, "reports", "")
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			_, err = u.Upload(context.Background(), tt.dir, tt.pack)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Upload() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(nil, "b", ""); err == nil {
		t.Fatal("New(nil client) returned nil error")
	}
	if _, err := New(&fakePutter{}, "", ""); err == nil {
		t.Fatal("New(empty bucket) returned nil error")
	}
}
