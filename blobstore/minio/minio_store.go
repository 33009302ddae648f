package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/hupe1980/walset/blobstore"
	"github.com/minio/minio-go/v7"
)

// objectAPI is the slice of *minio.Client the store calls. GetObject returns
// an io.ReadCloser so tests can serve ranges from memory.
type objectAPI interface {
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

type clientAPI struct{ *minio.Client }

func (c clientAPI) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := c.Client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Store keeps checkpoint blobs as objects under a key prefix.
type Store struct {
	api    objectAPI
	bucket string
	prefix string
}

// NewStore returns a Store writing to bucket. Names are joined to prefix
// with a single "/", so "walset" and "walset/" address the same keys.
func NewStore(client *minio.Client, bucket, prefix string) *Store {
	return newStore(clientAPI{client}, bucket, prefix)
}

func newStore(api objectAPI, bucket, prefix string) *Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Store{api: api, bucket: bucket, prefix: prefix}
}

func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.prefix + name
	info, err := s.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, translate(err, key)
	}
	return &object{store: s, key: key, size: info.Size}, nil
}

// Put uploads data in a single request, which S3 semantics make atomic.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	key := s.prefix + name
	_, err := s.api.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("minio: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	key := s.prefix + name
	err := s.api.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err = translate(err, key); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return err
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel() // stops the listing goroutine on early return

	var names []string
	for obj := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix + prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("minio: list %s: %w", s.prefix+prefix, obj.Err)
		}
		if name := strings.TrimPrefix(obj.Key, s.prefix); name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func translate(err error, key string) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return blobstore.ErrNotFound
	}
	return fmt.Errorf("minio: %s: %w", key, err)
}

type object struct {
	store *Store
	key   string
	size  int64
}

func (o *object) Size() int64  { return o.size }
func (o *object) Close() error { return nil }

// ReadAt issues one ranged GET clipped to the object size.
func (o *object) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= o.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	want := min(int64(len(p)), o.size-off)

	var opts minio.GetObjectOptions
	if err := opts.SetRange(off, off+want-1); err != nil {
		return 0, err
	}
	body, err := o.store.api.GetObject(ctx, o.store.bucket, o.key, opts)
	if err != nil {
		return 0, translate(err, o.key)
	}
	defer body.Close()

	n, err := io.ReadFull(body, p[:want])
	if err != nil {
		return n, fmt.Errorf("minio: read %s: %w", o.key, err)
	}
	if int(want) < len(p) {
		return n, io.EOF
	}
	return n, nil
}
