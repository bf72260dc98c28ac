package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/d4l-data4life/go-image-studio/pkg/config"
	"github.com/d4l-data4life/go-image-studio/pkg/imageutil"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// MinioStore keeps image blobs in an S3-compatible bucket
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioStore creates a store for the configured bucket
func NewMinioStore(cfg config.StorageConfig) (*MinioStore, error) {
	// minio.New expects the bare host
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create minio client")
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	logging.LogDebugf("Initialized object storage: endpoint=%s bucket=%s", endpoint, cfg.Bucket)

	return &MinioStore{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.Wrap(err, "failed to check bucket existence")
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrapf(err, "failed to create bucket %s", s.bucket)
	}
	logging.LogInfof("Created object storage bucket: %s", s.bucket)
	return nil
}

// Upload stores img under path with its content type
func (s *MinioStore) Upload(ctx context.Context, path string, img imageutil.Image) error {
	if len(img.Data) == 0 {
		return ErrInvalidImage
	}
	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(img.Data), int64(len(img.Data)), minio.PutObjectOptions{
		ContentType:  img.MIMEType,
		CacheControl: CacheControl,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to upload %s", path)
	}
	return nil
}

// Remove deletes the blob at path
func (s *MinioStore) Remove(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}

// Download reads the blob at path
func (s *MinioStore) Download(ctx context.Context, path string) (imageutil.Image, error) {
	object, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return imageutil.Image{}, errors.Wrapf(err, "failed to get %s", path)
	}
	defer object.Close()

	info, err := object.Stat()
	if err != nil {
		return imageutil.Image{}, errors.Wrapf(err, "failed to stat %s", path)
	}
	data, err := io.ReadAll(object)
	if err != nil {
		return imageutil.Image{}, errors.Wrapf(err, "failed to read %s", path)
	}
	mimeType := info.ContentType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = imageutil.DefaultMIMEType
	}
	return imageutil.Image{MIMEType: mimeType, Data: data}, nil
}

// PublicURL returns the URL the blob is served under
func (s *MinioStore) PublicURL(path string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, url.PathEscape(path))
}

// PathFromURL maps a public URL of this store back to the blob path
func (s *MinioStore) PathFromURL(rawURL string) (string, error) {
	prefix := fmt.Sprintf("%s/%s/", s.publicURL, s.bucket)
	if !strings.HasPrefix(rawURL, prefix) {
		return "", ErrForeignURL
	}
	path, err := url.PathUnescape(strings.TrimPrefix(rawURL, prefix))
	if err != nil || path == "" {
		return "", ErrForeignURL
	}
	return path, nil
}

// Check verifies the bucket exists and can be listed
func (s *MinioStore) Check(ctx context.Context) CheckResult {
	buckets, err := s.client.ListBuckets(ctx)
	if err != nil {
		return CheckResult{Error: fmt.Sprintf("Storage error: %v", err)}
	}
	names := make([]string, 0, len(buckets))
	for _, b := range buckets {
		names = append(names, b.Name)
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return CheckResult{Error: fmt.Sprintf("Storage error: %v", err), Buckets: names}
	}
	if !exists {
		return CheckResult{Error: ErrBucketMissing.Error(), Buckets: names}
	}

	count := 0
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{}) {
		if object.Err != nil {
			return CheckResult{
				Error:   fmt.Sprintf("Could connect to %s bucket but failed to list files: %v", s.bucket, object.Err),
				Buckets: names,
			}
		}
		count++
	}
	return CheckResult{Success: true, Buckets: names, FilesCount: count}
}
