package blobstore

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/hupe1980/leanvec/internal/atomicio"
)

// UploadDir archives the directory at dir as a gzipped tarball and
// stores it under key. Only regular files are archived; an index
// directory contains nothing else.
func UploadDir(ctx context.Context, store Store, key, dir string) error {
	pr, pw := io.Pipe()

	go func() {
		pw.CloseWithError(writeTarGz(pw, dir))
	}()

	if err := store.Put(ctx, key, pr, -1); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("blobstore: upload %s: %w", key, err)
	}
	return nil
}

// DownloadDir fetches the archive under key and extracts it to dir.
// The extraction is staged and published with a single rename, so dir
// either appears complete or not at all. dir must not already exist.
func DownloadDir(ctx context.Context, store Store, key, dir string) error {
	r, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer r.Close()

	staging, err := os.MkdirTemp(filepath.Dir(dir), ".leanvec-fetch-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if err := extractTarGz(r, staging); err != nil {
		return fmt.Errorf("blobstore: download %s: %w", key, err)
	}
	return atomicio.PublishDir(staging, dir)
}

func writeTarGz(w io.Writer, dir string) error {
	zw := gzip.NewWriter(w)
	tw := tar.NewWriter(zw)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return zw.Close()
}

func extractTarGz(r io.Reader, dir string) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.FromSlash(header.Name)
		if strings.Contains(name, "..") || filepath.IsAbs(name) {
			return fmt.Errorf("blobstore: archive entry escapes target: %q", header.Name)
		}

		target := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
}
