package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Sink receives messages in delivery order. Returning an error ends Join.
type Sink func(Message) error

// Consumer forwards progress for a set of projects to a sink.
type Consumer struct {
	b    *Broadcaster
	sink Sink
}

// Join subscribes to every prefix of every project, replays the mirrored
// latest messages and then forwards live messages until ctx ends. The
// subscription is confirmed before the replay so nothing published in
// between is lost; a message may therefore arrive twice.
func (c *Consumer) Join(ctx context.Context, projectIDs []int64) error {
	if len(projectIDs) == 0 {
		<-ctx.Done()
		return nil
	}

	channels := make([]string, 0, len(projectIDs)*len(Prefixes))
	latest := make([]string, 0, cap(channels))
	for _, pid := range projectIDs {
		for _, prefix := range Prefixes {
			channels = append(channels, ProgChannel(prefix, pid))
			latest = append(latest, LatestKey(prefix, pid))
		}
	}

	sub := c.b.store.Subscribe(ctx, channels...)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	for _, key := range latest {
		if err := c.replay(ctx, key); err != nil {
			return err
		}
	}

	live := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-live:
			if !ok {
				return nil
			}
			if err := c.deliver(m.Channel, m.Payload); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) replay(ctx context.Context, key string) error {
	entries, err := c.b.store.HGetAll(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	fields := make([]string, 0, len(entries))
	for f := range entries {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if err := c.deliver(key, entries[f]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Consumer) deliver(source, payload string) error {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		if c.b.logger != nil {
			c.b.logger.Warn("dropping malformed progress message", err, map[string]interface{}{"source": source})
		}
		return nil
	}
	return c.sink(msg)
}
