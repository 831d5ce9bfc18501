package minio

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/minio/minio-go/v7"
)

// Put uploads reader under objectKey. Pass size when known; otherwise the
// object is streamed in parts of UploadConfig.MinPartSize.
func (m *MinioClient) Put(ctx context.Context, objectKey string, reader io.Reader, size ...int64) (int64, error) {
	actualSize := unknownSize
	if len(size) > 0 && size[0] != 0 {
		actualSize = size[0]
	}

	c := m.client.Load()
	if c == nil {
		return 0, ErrConnectionFailed
	}
	info, err := c.PutObject(ctx, m.cfg.Connection.BucketName, objectKey, reader, actualSize, minio.PutObjectOptions{
		PartSize: m.cfg.UploadConfig.MinPartSize,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to put %s: %w", objectKey, err)
	}
	return info.Size, nil
}

// PutFile uploads a local file. A missing file is reported as
// os.ErrNotExist so callers can skip logs that were never written.
func (m *MinioClient) PutFile(ctx context.Context, objectKey, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return m.Put(ctx, objectKey, f, stat.Size())
}

// Get returns the whole object.
func (m *MinioClient) Get(ctx context.Context, objectKey string) ([]byte, error) {
	c := m.client.Load()
	if c == nil {
		return nil, ErrConnectionFailed
	}
	reader, err := c.GetObject(ctx, m.cfg.Connection.BucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			m.logError("failed to close object reader", err, map[string]interface{}{"key": objectKey})
		}
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read object data: %w", err)
	}
	return data, nil
}

// Delete removes an object. Removing a missing object succeeds.
func (m *MinioClient) Delete(ctx context.Context, objectKey string) error {
	c := m.client.Load()
	if c == nil {
		return ErrConnectionFailed
	}
	return c.RemoveObject(ctx, m.cfg.Connection.BucketName, objectKey, minio.RemoveObjectOptions{})
}

// Open streams an object. The caller closes the reader.
func (m *MinioClient) Open(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	c := m.client.Load()
	if c == nil {
		return nil, ErrConnectionFailed
	}
	obj, err := c.GetObject(ctx, m.cfg.Connection.BucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", objectKey, err)
	}
	return obj, nil
}
