package minio

import (
	"context"
	"io"
)

// Client is the object store surface the job runner and packager use.
type Client interface {
	Put(ctx context.Context, objectKey string, reader io.Reader, size ...int64) (int64, error)
	PutFile(ctx context.Context, objectKey, path string) (int64, error)
	Get(ctx context.Context, objectKey string) ([]byte, error)
	Open(ctx context.Context, objectKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, objectKey string) error
}

var _ Client = (*MinioClient)(nil)
