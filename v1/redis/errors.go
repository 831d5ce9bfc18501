package redis

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

var (
	// Nil is returned when a key or hash field does not exist.
	Nil = redis.Nil

	// ErrClosed is returned for commands issued after Close.
	ErrClosed = redis.ErrClosed
)

// IsNilError reports whether err means "key does not exist".
func IsNilError(err error) bool {
	return errors.Is(err, Nil)
}

func IsClosedError(err error) bool {
	return errors.Is(err, ErrClosed)
}
