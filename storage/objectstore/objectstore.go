package objectstore

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/storage/objectstore/memstore"
	"github.com/trezcool/colegio/storage/objectstore/s3store"
)

const (
	DriverS3     = "s3"
	DriverMemory = "memory"
	DriverNone   = "none"
)

// New returns the object storage selected by conf.Driver. An S3 storage without
// credentials is replaced by one failing every call with core.ErrStorageNotConfigured.
func New(ctx context.Context, conf core.StorageConfig) (core.ObjectStorage, error) {
	switch conf.Driver {
	case DriverMemory:
		store := memstore.New(conf.Bucket, conf.PublicBaseURL)
		store.Public = !conf.Private
		return store, nil
	case DriverNone:
		return NewDisabled(conf.Bucket), nil
	case DriverS3, "":
		if !conf.Configured() {
			return NewDisabled(conf.Bucket), nil
		}
		store, err := s3store.New(ctx, conf)
		if err != nil {
			return nil, errors.Wrap(err, "creating s3 storage")
		}
		return store, nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", conf.Driver)
	}
}

type disabled struct {
	bucket string
}

var _ core.ObjectStorage = (*disabled)(nil)

func NewDisabled(bucket string) core.ObjectStorage {
	return &disabled{bucket: bucket}
}

func (d disabled) Bucket() string { return d.bucket }

func (d disabled) Private() bool { return true }

func (d disabled) Upload(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", core.ErrStorageNotConfigured
}

func (d disabled) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", core.ErrStorageNotConfigured
}

func (d disabled) List(context.Context, string) ([]string, error) {
	return nil, core.ErrStorageNotConfigured
}

func (d disabled) Delete(context.Context, ...string) error {
	return core.ErrStorageNotConfigured
}
