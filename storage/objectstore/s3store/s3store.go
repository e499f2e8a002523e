package s3store

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
)

// maxDeleteBatch is the most keys a single DeleteObjects call accepts.
const maxDeleteBatch = 1000

type Store struct {
	client        *s3.Client
	presigner     *s3.PresignClient
	bucket        string
	publicBaseURL string
	private       bool
}

var _ core.ObjectStorage = (*Store)(nil)

// New connects to an S3 compatible storage. A custom endpoint (eg: MinIO, Supabase storage)
// is used when conf.Endpoint is set.
func New(ctx context.Context, conf core.StorageConfig) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(conf.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(conf.AccessKey, conf.SecretKey, "")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
		}
		o.UsePathStyle = conf.UsePathStyle
	})
	return &Store{
		client:        client,
		presigner:     s3.NewPresignClient(client),
		bucket:        conf.Bucket,
		publicBaseURL: strings.TrimSuffix(conf.PublicBaseURL, "/"),
		private:       conf.Private,
	}, nil
}

func (s *Store) Bucket() string {
	return s.bucket
}

func (s *Store) Private() bool {
	return s.private
}

// PublicURL returns the public URL of the object at path.
func (s *Store) PublicURL(path string) string {
	return s.publicBaseURL + core.PublicObjectPrefix(s.bucket) + path
}

func (s *Store) Upload(ctx context.Context, path string, body io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(path),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "putting object %s", path)
	}
	return s.PublicURL(path), nil
}

func (s *Store) SignedURL(ctx context.Context, path string, expiresIn time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", errors.Wrapf(err, "presigning object %s", path)
	}
	return req.URL, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	paths := make([]string, 0)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "listing objects under %s", prefix)
		}
		for _, obj := range page.Contents {
			if key := aws.ToString(obj.Key); key != "" && !strings.HasSuffix(key, "/") {
				paths = append(paths, key)
			}
		}
	}
	return paths, nil
}

func (s *Store) Delete(ctx context.Context, paths ...string) error {
	for start := 0; start < len(paths); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(paths) {
			end = len(paths)
		}

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, p := range paths[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(p)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return errors.Wrap(err, "deleting objects")
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return errors.Errorf(
				"deleting %d objects failed, first: %s: %s",
				len(out.Errors), aws.ToString(e.Key), aws.ToString(e.Message),
			)
		}
	}
	return nil
}
