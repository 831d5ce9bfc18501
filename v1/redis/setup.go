package redis

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Logger is the subset of *logger.Logger the client writes to.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// RedisClient wraps a go-redis client. It carries the hash and pub/sub
// operations the progress broadcaster and the command dispatcher rely on.
type RedisClient struct {
	client *redis.Client
	cfg    Config
	logger Logger

	mu                sync.RWMutex
	closed            bool
	closeShutdownOnce sync.Once
}

// NewClient builds a client for a single Redis node. No connection is made
// until the first command; the fx lifecycle pings on start.
func NewClient(cfg Config, logger Logger) (*RedisClient, error) {
	cfg = cfg.withDefaults()

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled {
		var err error
		tlsConfig, err = createTLSConfig(cfg.TLS, cfg.Host)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:            fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username:        cfg.Username,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		ConnMaxIdleTime: cfg.IdleTimeout,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		TLSConfig:       tlsConfig,
	})

	r := &RedisClient{client: client, cfg: cfg, logger: logger}
	r.info("redis client initialized", map[string]interface{}{"addr": client.Options().Addr})
	return r, nil
}

func createTLSConfig(cfg TLSConfig, host string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec
		ServerName:         cfg.ServerName,
		MinVersion:         tls.VersionTLS12,
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = host
	}

	if cfg.CACertPath != "" {
		caCert, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.ClientCertPath != "" && cfg.ClientKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// Close releases the connection pool. Calling it more than once is safe.
func (r *RedisClient) Close() error {
	var err error
	r.closeShutdownOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.closed = true
		err = r.client.Close()
		r.info("redis client closed", nil)
	})
	return err
}

// Client exposes the underlying go-redis client for commands not wrapped
// here.
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

func (r *RedisClient) info(msg string, fields map[string]interface{}) {
	if r.logger == nil {
		return
	}
	if fields == nil {
		r.logger.Info(msg, nil)
		return
	}
	r.logger.Info(msg, nil, fields)
}

func (r *RedisClient) warn(msg string, err error, fields map[string]interface{}) {
	if r.logger != nil {
		r.logger.Warn(msg, err, fields)
	}
}
