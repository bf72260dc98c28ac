package storage

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/d4l-data4life/go-image-studio/pkg/imageutil"
)

// MemoryStore is an in-process BlobStore used for local development and tests
type MemoryStore struct {
	mu        sync.RWMutex
	blobs     map[string]imageutil.Image
	publicURL string

	// FailUploads makes every Upload fail
	FailUploads bool
}

// NewMemoryStore creates an empty store serving URLs below publicURL
func NewMemoryStore(publicURL string) *MemoryStore {
	if publicURL == "" {
		publicURL = "http://memory.local"
	}
	return &MemoryStore{
		blobs:     map[string]imageutil.Image{},
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}
}

func (s *MemoryStore) Upload(_ context.Context, path string, img imageutil.Image) error {
	if s.FailUploads {
		return fmt.Errorf("failed to upload %s", path)
	}
	if len(img.Data) == 0 {
		return ErrInvalidImage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[path] = img
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, path)
	return nil
}

func (s *MemoryStore) Download(_ context.Context, path string) (imageutil.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.blobs[path]
	if !ok {
		return imageutil.Image{}, fmt.Errorf("blob %s not found", path)
	}
	return img, nil
}

func (s *MemoryStore) PublicURL(path string) string {
	return fmt.Sprintf("%s/images/%s", s.publicURL, url.PathEscape(path))
}

func (s *MemoryStore) PathFromURL(rawURL string) (string, error) {
	prefix := s.publicURL + "/images/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", ErrForeignURL
	}
	path, err := url.PathUnescape(strings.TrimPrefix(rawURL, prefix))
	if err != nil || path == "" {
		return "", ErrForeignURL
	}
	return path, nil
}

// Check always succeeds for the in-memory store
func (s *MemoryStore) Check(_ context.Context) CheckResult {
	return CheckResult{Success: true, Buckets: []string{"images"}, FilesCount: len(s.Paths())}
}

// Paths lists the stored blob paths in sorted order
func (s *MemoryStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.blobs))
	for p := range s.blobs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
