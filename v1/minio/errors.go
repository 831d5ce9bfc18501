package minio

import (
	"errors"

	"github.com/minio/minio-go/v7"
)

var ErrConnectionFailed = errors.New("minio: no connection")

// IsNotFound reports a missing bucket or key, looking through wrapping.
func IsNotFound(err error) bool {
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}
