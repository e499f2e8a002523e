package core

import (
	"context"
	"io"
	"strings"
	"time"
)

const (
	// DocumentsBucket is the bucket holding institutional documents and task evidences.
	DocumentsBucket = "documentos"

	// SignedURLExpiry is how long download URLs remain valid.
	SignedURLExpiry = 900 * time.Second
)

// PublicObjectPrefix is the URL path segment that precedes an object path in a public URL.
func PublicObjectPrefix(bucket string) string {
	return "/storage/v1/object/public/" + bucket + "/"
}

// ObjectPathFromURL recovers the object path from a stored public URL by stripping
// everything up to and including the public object prefix of bucket.
func ObjectPathFromURL(url, bucket string) (string, bool) {
	prefix := PublicObjectPrefix(bucket)
	idx := strings.Index(url, prefix)
	if idx < 0 {
		return "", false
	}
	path := url[idx+len(prefix):]
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return path, path != ""
}

// UploadedFile is a file received from a client, not yet stored.
type UploadedFile struct {
	FileName string
	MimeType string
	Size     int64
	Body     io.Reader
}

// ObjectStorage stores binary blobs of a single bucket under slash separated paths.
type ObjectStorage interface {
	// Bucket returns the name of the bucket objects are stored in.
	Bucket() string
	// Private reports whether objects can only be read through signed URLs.
	Private() bool
	// Upload stores body under path and returns its public URL.
	Upload(ctx context.Context, path string, body io.Reader, size int64, contentType string) (string, error)
	// SignedURL returns a time-limited URL granting read access to path.
	SignedURL(ctx context.Context, path string, expiresIn time.Duration) (string, error)
	// List returns the paths of all objects under prefix, recursively.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes the objects at paths. Missing objects are not an error.
	Delete(ctx context.Context, paths ...string) error
}

// Cache is a byte oriented key-value cache with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
