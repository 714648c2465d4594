// Package fixture stores and caches homework fixture packs: the input
// files every test run of a homework is seeded with, packaged as tar.zst
// objects.
package fixture

import (
	"archive/tar"
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	appErr "hwjudge/pkg/errors"
)

// Pack serializes fixture files into a zstd-compressed tar archive.
func Pack(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.StorageError)
	}
	tw := tar.NewWriter(zw)
	for name, content := range files {
		hdr := &tar.Header{
			Name:    filepath.Base(name),
			Mode:    0o644,
			Size:    int64(len(content)),
			ModTime: time.Now(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, appErr.Wrap(err, appErr.StorageError)
		}
		if _, err := tw.Write(content); err != nil {
			return nil, appErr.Wrap(err, appErr.StorageError)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, appErr.Wrap(err, appErr.StorageError)
	}
	if err := zw.Close(); err != nil {
		return nil, appErr.Wrap(err, appErr.StorageError)
	}
	return buf.Bytes(), nil
}

// Unpack restores fixture files from a pack. Entries with path separators
// are rejected: packs are flat by construction and anything else points at
// a tampered object.
func Unpack(data []byte) (map[string][]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, appErr.Wrap(err, appErr.FixturePackCorrupted)
	}
	defer zr.Close()

	files := make(map[string][]byte)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appErr.Wrap(err, appErr.FixturePackCorrupted)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if strings.ContainsAny(hdr.Name, `/\`) || hdr.Name == ".." {
			return nil, appErr.Newf(appErr.FixturePackCorrupted, "illegal entry name %q", hdr.Name)
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.FixturePackCorrupted)
		}
		files[hdr.Name] = content
	}
	return files, nil
}
