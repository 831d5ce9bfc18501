// Package redis wraps a single-node go-redis client with the hash and
// pub/sub commands used by the progress broadcaster and the job command
// dispatcher.
//
// The client is safe for concurrent use. Hash field operations are atomic on
// the server, which is what lets broadcaster instances in different
// processes share the started/done bookkeeping for a group.
//
//	client, err := redis.NewClient(redis.Config{Host: "localhost"}, log)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	_, err = client.HSet(ctx, "algorithm_latest_1", "gid", payload)
//
// With fx, include redis.FXModule and provide a redis.Config. The module
// provides both *RedisClient and Client.
package redis
