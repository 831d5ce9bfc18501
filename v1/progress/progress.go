package progress

import (
	"context"
	"strconv"
	"time"

	"github.com/Aleph-Alpha/annotation-engine/v1/redis"
)

// Prefixes group progress streams by workload family.
const (
	PrefixAlgorithm = "algorithm"
	PrefixUpload    = "upload"
	PrefixDownload  = "download"
)

// Prefixes is the set a consumer joins for every project.
var Prefixes = []string{PrefixAlgorithm, PrefixUpload, PrefixDownload}

const (
	StateStarted  = "started"
	StateFailed   = "failed"
	StateFinished = "finished"
)

// SoftwareLatestKey maps a software id to the time its last message was sent.
const SoftwareLatestKey = "sw_latest"

// Message is one progress event as it travels over the channel and as it is
// mirrored in the latest hash.
type Message map[string]interface{}

// Store is the slice of the Redis client the broadcaster needs. Hash field
// operations must be atomic per key.
type Store interface {
	redis.Hashes
	redis.Channels
	Delete(ctx context.Context, keys ...string) (int64, error)
}

type Logger interface {
	Debug(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
}

// ProgChannel is the pub/sub channel for a (prefix, project) group.
func ProgChannel(prefix string, projectID int64) string {
	return prefix + "_prog_" + strconv.FormatInt(projectID, 10)
}

// LatestKey is the hash mirroring the last message per uid and the current
// summary per gid for a (prefix, project) group.
func LatestKey(prefix string, projectID int64) string {
	return prefix + "_latest_" + strconv.FormatInt(projectID, 10)
}

func startedKey(gid string) string { return gid + ":started" }
func doneKey(gid string) string    { return gid + ":done" }

func nowUTC() time.Time { return time.Now().UTC() }
