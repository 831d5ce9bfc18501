package redis

import "time"

const (
	DefaultHost            = "localhost"
	DefaultPort            = 6379
	DefaultMaxRetries      = 3
	DefaultMinRetryBackoff = 8 * time.Millisecond
	DefaultMaxRetryBackoff = 512 * time.Millisecond
	DefaultDialTimeout     = 5 * time.Second
	DefaultReadTimeout     = 3 * time.Second
	DefaultIdleTimeout     = 5 * time.Minute
)

// Config holds the connection settings for a single Redis node.
type Config struct {
	Host     string `yaml:"host" envconfig:"REDIS_HOST"`
	Port     int    `yaml:"port" envconfig:"REDIS_PORT"`
	Username string `yaml:"username" envconfig:"REDIS_USERNAME"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`

	PoolSize     int `yaml:"pool_size" envconfig:"REDIS_POOL_SIZE"`
	MinIdleConns int `yaml:"min_idle_conns" envconfig:"REDIS_MIN_IDLE_CONNS"`

	// MaxRetries of -1 disables retries.
	MaxRetries      int           `yaml:"max_retries" envconfig:"REDIS_MAX_RETRIES"`
	MinRetryBackoff time.Duration `yaml:"min_retry_backoff" envconfig:"REDIS_MIN_RETRY_BACKOFF"`
	MaxRetryBackoff time.Duration `yaml:"max_retry_backoff" envconfig:"REDIS_MAX_RETRY_BACKOFF"`

	DialTimeout  time.Duration `yaml:"dial_timeout" envconfig:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"REDIS_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" envconfig:"REDIS_IDLE_TIMEOUT"`

	TLS TLSConfig `yaml:"tls" ignored:"true"`
}

type TLSConfig struct {
	Enabled        bool   `yaml:"enabled" envconfig:"REDIS_TLS_ENABLED"`
	CACertPath     string `yaml:"ca_cert_path" envconfig:"REDIS_TLS_CA_CERT"`
	ClientCertPath string `yaml:"client_cert_path" envconfig:"REDIS_TLS_CLIENT_CERT"`
	ClientKeyPath  string `yaml:"client_key_path" envconfig:"REDIS_TLS_CLIENT_KEY"`
	// InsecureSkipVerify is for local testing only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" envconfig:"REDIS_TLS_INSECURE_SKIP_VERIFY"`
	// ServerName defaults to Config.Host.
	ServerName string `yaml:"server_name" envconfig:"REDIS_TLS_SERVER_NAME"`
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MinRetryBackoff == 0 {
		c.MinRetryBackoff = DefaultMinRetryBackoff
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = DefaultMaxRetryBackoff
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	return c
}
