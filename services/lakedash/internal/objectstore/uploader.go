// Package objectstore uploads zipped dashboard bundles to an S3 compatible store.
package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Putter is the subset of the S3 client used for uploads.
type Putter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, sha256, contentType string) error
}

// Uploader archives a directory and stores it under a bucket prefix.
type Uploader struct {
	client Putter
	bucket string
	prefix string
}

// New returns an Uploader writing to bucket under prefix.
func New(client Putter, bucket, prefix string) (*Uploader, error) {
	if client == nil {
		return nil, errors.New("objectstore: client is required")
	}
	if bucket == "" {
		return nil, errors.New("objectstore: bucket is required")
	}
	return &Uploader{client: client, bucket: bucket, prefix: strings.TrimPrefix(prefix, "/")}, nil
}

// Upload zips dir and stores it as <prefix><dir name>.zip. The object key is
// returned as the bundle handle.
func (u *Uploader) Upload(ctx context.Context, dir, pack string) (string, error) {
	if pack != "" && pack != "zip" {
		return "", fmt.Errorf("objectstore: unsupported pack %q", pack)
	}

	tmp, err := os.CreateTemp("", "lakedash-bundle-*.zip")
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	hash := sha256.New()
	if err := ZipDir(io.MultiWriter(tmp, hash), dir); err != nil {
		return "", fmt.Errorf("archive %s: %w", dir, err)
	}

	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", fmt.Errorf("archive size: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind archive: %w", err)
	}

	key := path.Join(u.prefix, filepath.Base(dir)+".zip")
	if err := u.client.PutObject(ctx, u.bucket, key, tmp, size, hex.EncodeToString(hash.Sum(nil)), "application/zip"); err != nil {
		return "", fmt.Errorf("put %s/%s: %w", u.bucket, key, err)
	}
	return key, nil
}
