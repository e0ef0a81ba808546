package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"time"

	pipeerrors "github.com/riverlane-stream/live-pipeline/internal/errors"
)

// MemoryStore is an in-process Store implementation for unit tests. It
// never touches the network or filesystem except to read the local file
// given to PutFile.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	modTime map[string]time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		modTime: make(map[string]time.Time),
	}
}

func (s *MemoryStore) PutFile(ctx context.Context, key, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return pipeerrors.NewStorageError("putFile:"+key, err)
	}
	return s.PutBytes(ctx, key, data)
}

func (s *MemoryStore) PutBytes(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = cp
	s.modTime[key] = time.Now()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, pipeerrors.NewStorageError("get:"+key, os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.modTime, key)
	return nil
}

func (s *MemoryStore) Head(ctx context.Context, key string) (ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return ObjectInfo{}, pipeerrors.NewStorageError("head:"+key, os.ErrNotExist)
	}
	return ObjectInfo{Key: key, Size: int64(len(data)), LastModified: s.modTime[key]}, nil
}

func (s *MemoryStore) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", pipeerrors.NewStorageError("signedURL:"+key, os.ErrNotExist)
	}
	return "memory://" + key + "?expires=" + time.Now().Add(expiry).Format(time.RFC3339), nil
}

var _ Store = (*MemoryStore)(nil)
