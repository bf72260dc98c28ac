package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/d4l-data4life/go-image-studio/pkg/imageutil"
)

// CacheControl is attached to every uploaded blob
const CacheControl = "max-age=3600"

var (
	// ErrBucketMissing indicates the configured bucket does not exist
	ErrBucketMissing = errors.New("images bucket does not exist")
	// ErrForeignURL indicates a URL that does not point into the images bucket
	ErrForeignURL = errors.New("URL does not point into the images bucket")
	// ErrInvalidImage indicates image data that cannot be stored
	ErrInvalidImage = errors.New("invalid image data")
)

// BlobStore stores image blobs addressed by path
type BlobStore interface {
	Upload(ctx context.Context, path string, img imageutil.Image) error
	Remove(ctx context.Context, path string) error
	Download(ctx context.Context, path string) (imageutil.Image, error)
	PublicURL(path string) string
	// PathFromURL maps a public URL back to its blob path
	PathFromURL(rawURL string) (string, error)
}

// NewBlobPath returns a unique path of the form <unix-millis>-<uuid>
func NewBlobPath() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.New())
}

// CheckResult reports the state of the object storage connection
type CheckResult struct {
	Success    bool     `json:"success"`
	Error      string   `json:"error,omitempty"`
	Buckets    []string `json:"buckets,omitempty"`
	FilesCount int      `json:"filesCount"`
}
