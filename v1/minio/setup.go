package minio

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Logger is the logging surface this package needs.
//
//go:generate mockgen -source=setup.go -destination=mock_logger.go -package=minio
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// MinioClient stores algorithm logs and download packages in one bucket.
type MinioClient struct {
	client atomic.Pointer[minio.Client]
	cfg    Config
	logger Logger
}

// NewClient connects, validates the credentials against the bucket and
// creates the bucket when allowed.
func NewClient(cfg Config, logger Logger) (*MinioClient, error) {
	if cfg.UploadConfig.MinPartSize == 0 {
		cfg.UploadConfig.MinPartSize = DefaultPartSize
	}

	client, err := connectToMinio(cfg)
	if err != nil {
		return nil, err
	}
	m := &MinioClient{cfg: cfg, logger: logger}
	m.client.Store(client)
	m.logInfo("Connecting to MinIO", map[string]interface{}{"endpoint": cfg.Connection.Endpoint})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.ensureBucketExists(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func connectToMinio(cfg Config) (*minio.Client, error) {
	if cfg.Connection.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint cannot be empty")
	}
	return minio.New(cfg.Connection.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Connection.AccessKeyID, cfg.Connection.SecretAccessKey, ""),
		Secure: cfg.Connection.UseSSL,
		Region: cfg.Connection.Region,
	})
}

func (m *MinioClient) ensureBucketExists(ctx context.Context) error {
	bucketName := m.cfg.Connection.BucketName
	if bucketName == "" {
		return fmt.Errorf("bucket name is empty")
	}

	c := m.client.Load()
	if c == nil {
		return ErrConnectionFailed
	}
	exists, err := c.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists, bucket: %v, err: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	if !m.cfg.Connection.AccessBucketCreation {
		return fmt.Errorf("bucket does not exist, please create it manually")
	}

	m.logInfo("Bucket does not exist, creating it", map[string]interface{}{
		"bucket": bucketName,
		"region": m.cfg.Connection.Region,
	})
	if err := c.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: m.cfg.Connection.Region}); err != nil {
		return err
	}
	m.logInfo("Successfully created bucket", map[string]interface{}{"bucket": bucketName})
	return nil
}

func (m *MinioClient) logInfo(msg string, fields map[string]interface{}) {
	if m.logger != nil {
		m.logger.Info(msg, nil, fields)
	}
}

func (m *MinioClient) logError(msg string, err error, fields map[string]interface{}) {
	if m.logger != nil {
		m.logger.Error(msg, err, fields)
	}
}
