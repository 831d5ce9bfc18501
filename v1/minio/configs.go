package minio

const (
	unknownSize int64 = -1

	DefaultPartSize uint64 = 16 * 1024 * 1024
)

type Config struct {
	Connection   ConnectionConfig `yaml:"connection" ignored:"true"`
	UploadConfig UploadConfig     `yaml:"upload" ignored:"true"`
}

type ConnectionConfig struct {
	Endpoint        string `yaml:"endpoint" envconfig:"MINIO_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" envconfig:"MINIO_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" envconfig:"MINIO_SECRET_ACCESS_KEY"`
	UseSSL          bool   `yaml:"use_ssl" envconfig:"MINIO_USE_SSL"`
	BucketName      string `yaml:"bucket_name" envconfig:"MINIO_BUCKET_NAME"`
	Region          string `yaml:"region" envconfig:"MINIO_REGION"`
	// AccessBucketCreation lets NewClient create a missing bucket.
	AccessBucketCreation bool `yaml:"access_bucket_creation" envconfig:"MINIO_ACCESS_BUCKET_CREATION"`
}

type UploadConfig struct {
	// MinPartSize is the multipart chunk size for streams of unknown length.
	MinPartSize uint64 `yaml:"min_part_size" envconfig:"MINIO_MIN_PART_SIZE"`
}
