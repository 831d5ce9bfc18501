package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)

	cfg = Config{Host: "cache", Port: 7000, MaxRetries: -1}.withDefaults()
	assert.Equal(t, "cache", cfg.Host)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, -1, cfg.MaxRetries)
}

func TestEncode(t *testing.T) {
	t.Run("strings pass through", func(t *testing.T) {
		v, err := encode("stop")
		require.NoError(t, err)
		assert.Equal(t, "stop", v)
	})

	t.Run("structs become json", func(t *testing.T) {
		v, err := encode(map[string]int{"num_procs": 2})
		require.NoError(t, err)
		assert.JSONEq(t, `{"num_procs":2}`, string(v.([]byte)))
	})

	t.Run("unencodable values fail", func(t *testing.T) {
		_, err := encode(make(chan int))
		assert.Error(t, err)
	})
}

func TestTLSConfig(t *testing.T) {
	cfg, err := createTLSConfig(TLSConfig{Enabled: true}, "redis.internal")
	require.NoError(t, err)
	assert.Equal(t, "redis.internal", cfg.ServerName)

	_, err = createTLSConfig(TLSConfig{Enabled: true, CACertPath: "/does/not/exist"}, "h")
	assert.Error(t, err)
}

func TestNewClientUsesDefaults(t *testing.T) {
	c, err := NewClient(Config{}, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "localhost:6379", c.Client().Options().Addr)
}
