// Package evidence stores files attached to MRV reports.
package evidence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store persists an evidence file and returns a stable reference to it
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// Key builds an object key under the project's folder. The original file
// name is kept only for its extension.
func Key(prefix string, projectID uuid.UUID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	return path.Join(strings.Trim(prefix, "/"), projectID.String(), uuid.NewString()+ext)
}

// Uploader is satisfied by storage.S3Client
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// ObjectStore stores evidence in an object store
type ObjectStore struct {
	uploader Uploader
}

func NewObjectStore(uploader Uploader) *ObjectStore {
	return &ObjectStore{uploader: uploader}
}

func (s *ObjectStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	return s.uploader.Upload(ctx, key, body, contentType)
}

// Object is a file held by MemoryStore
type Object struct {
	Body        []byte
	ContentType string
}

// MemoryStore keeps evidence in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

func (s *MemoryStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read evidence: %w", err)
	}
	s.mu.Lock()
	s.objects[key] = Object{Body: data, ContentType: contentType}
	s.mu.Unlock()
	return "memory://" + key, nil
}

// Get returns a stored object by key
func (s *MemoryStore) Get(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	if !ok {
		return Object{}, false
	}
	return Object{Body: bytes.Clone(o.Body), ContentType: o.ContentType}, true
}
