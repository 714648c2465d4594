package fixture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"hwjudge/internal/common/storage"
	appErr "hwjudge/pkg/errors"
)

// Store uploads and serves fixture packs from object storage, keeping
// unpacked homeworks in memory so concurrent test runs of one homework
// download the pack only once.
type Store struct {
	storage storage.ObjectStorage
	bucket  string

	mu    sync.Mutex
	packs map[string]*packEntry
}

type packEntry struct {
	once  sync.Once
	files map[string][]byte
	err   error
}

// NewStore creates a fixture store over the given bucket.
func NewStore(objStorage storage.ObjectStorage, bucket string) *Store {
	return &Store{
		storage: objStorage,
		bucket:  bucket,
		packs:   make(map[string]*packEntry),
	}
}

func packKey(homework, typ string) string {
	return fmt.Sprintf("fixtures/%s/%s.tar.zst", homework, typ)
}

// Upload packages and stores the fixture files of one (homework, type),
// invalidating any cached copy.
func (s *Store) Upload(ctx context.Context, homework, typ string, files map[string][]byte) error {
	data, err := Pack(files)
	if err != nil {
		return err
	}
	key := packKey(homework, typ)
	if err := s.storage.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), "application/zstd"); err != nil {
		return appErr.Wrap(err, appErr.StorageError)
	}
	s.mu.Lock()
	delete(s.packs, key)
	s.mu.Unlock()
	return nil
}

// Fixtures returns the unpacked fixture files of one (homework, type). A
// homework without a stored pack yields an empty map: not every homework
// needs fixtures. Callers must not mutate the returned contents.
func (s *Store) Fixtures(ctx context.Context, homework, typ string) (map[string][]byte, error) {
	key := packKey(homework, typ)

	s.mu.Lock()
	entry, ok := s.packs[key]
	if !ok {
		entry = &packEntry{}
		s.packs[key] = entry
	}
	s.mu.Unlock()

	entry.once.Do(func() {
		entry.files, entry.err = s.fetch(ctx, key)
	})
	if entry.err != nil {
		// Drop the failed entry so a later caller can retry the download.
		s.mu.Lock()
		if s.packs[key] == entry {
			delete(s.packs, key)
		}
		s.mu.Unlock()
		return nil, entry.err
	}
	return entry.files, nil
}

func (s *Store) fetch(ctx context.Context, key string) (map[string][]byte, error) {
	if _, err := s.storage.StatObject(ctx, s.bucket, key); err != nil {
		if appErr.Is(err, appErr.ObjectNotFound) {
			return map[string][]byte{}, nil
		}
		return nil, appErr.Wrap(err, appErr.StorageError)
	}
	reader, err := s.storage.GetObject(ctx, s.bucket, key)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.StorageError)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.StorageError)
	}
	return Unpack(data)
}
