package objectstore

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// ZipDir writes the contents of dir to w as a zip archive. Entry names are
// slash separated and relative to dir.
func ZipDir(w io.Writer, dir string) error {
	zw := zip.NewWriter(w)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return fmt.Errorf("unsupported file type %s", path)
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("zip header %s: %w", rel, err)
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
			header.Method = zip.Store
			_, err := zw.CreateHeader(header)
			return err
		}
		header.Method = zip.Deflate

		dst, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("zip entry %s: %w", rel, err)
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(dst, f); err != nil {
			return fmt.Errorf("zip copy %s: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		_ = zw.Close()
		return err
	}

	return zw.Close()
}
