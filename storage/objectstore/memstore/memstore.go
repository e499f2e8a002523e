// Package memstore is an in-memory object storage for development and tests.
package memstore

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
)

type object struct {
	data        []byte
	contentType string
}

type Store struct {
	bucket  string
	baseURL string

	mu      sync.Mutex
	objects map[string]object

	// Public stores objects in a public bucket: no signed URLs are needed.
	Public bool

	// injected failures
	UploadErr error
	SignErr   error
	ListErr   error
	DeleteErr error

	// calls log
	Uploaded []string
	Deleted  []string
}

var _ core.ObjectStorage = (*Store)(nil)

func New(bucket, baseURL string) *Store {
	if baseURL == "" {
		baseURL = "http://localhost:54321"
	}
	return &Store{
		bucket:  bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		objects: make(map[string]object),
	}
}

func (s *Store) Bucket() string {
	return s.bucket
}

func (s *Store) Private() bool {
	return !s.Public
}

func (s *Store) PublicURL(path string) string {
	return s.baseURL + core.PublicObjectPrefix(s.bucket) + path
}

func (s *Store) Upload(_ context.Context, path string, body io.Reader, _ int64, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Uploaded = append(s.Uploaded, path)
	if s.UploadErr != nil {
		return "", s.UploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", errors.Wrap(err, "reading body")
	}
	s.objects[path] = object{data: data, contentType: contentType}
	return s.PublicURL(path), nil
}

func (s *Store) SignedURL(_ context.Context, path string, expiresIn time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SignErr != nil {
		return "", s.SignErr
	}
	if _, ok := s.objects[path]; !ok {
		return "", errors.Errorf("object %s not found", path)
	}
	q := make(url.Values)
	q.Set("token", "signed")
	q.Set("expires_in", expiresIn.String())
	return s.baseURL + "/storage/v1/object/sign/" + s.bucket + "/" + path + "?" + q.Encode(), nil
}

func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ListErr != nil {
		return nil, s.ListErr
	}
	paths := make([]string, 0)
	for p := range s.objects {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *Store) Delete(_ context.Context, paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Deleted = append(s.Deleted, paths...)
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	for _, p := range paths {
		delete(s.objects, p)
	}
	return nil
}

// Put stores data at path without going through Upload.
func (s *Store) Put(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = object{data: data, contentType: "application/octet-stream"}
}

// Has reports whether an object is stored at path.
func (s *Store) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path]
	return ok
}

// Open returns the content stored at path.
func (s *Store) Open(path string) (io.Reader, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path]
	if !ok {
		return nil, false
	}
	return bytes.NewReader(obj.data), true
}
