package storage

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/d4l-data4life/go-image-studio/pkg/imageutil"
)

// Resolver turns image references into bytes. Data URLs are decoded in place,
// URLs into the bucket are downloaded once and kept in memory for ttl.
type Resolver struct {
	store BlobStore
	cache *cache.Cache
}

// NewResolver creates a resolver backed by store
func NewResolver(store BlobStore, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Resolver{
		store: store,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Resolve returns the image behind a data URL or a public storage URL
func (r *Resolver) Resolve(ctx context.Context, ref string) (imageutil.Image, error) {
	if !imageutil.IsRemoteURL(ref) {
		return imageutil.ParseDataURL(ref)
	}
	if cached, found := r.cache.Get(ref); found {
		return cached.(imageutil.Image), nil
	}

	path, err := r.store.PathFromURL(ref)
	if err != nil {
		return imageutil.Image{}, err
	}
	img, err := r.store.Download(ctx, path)
	if err != nil {
		return imageutil.Image{}, err
	}
	r.cache.SetDefault(ref, img)
	return img, nil
}

// Forget drops a cached download, used when the blob is removed
func (r *Resolver) Forget(rawURL string) {
	r.cache.Delete(rawURL)
}
