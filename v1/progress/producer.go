package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Producer emits the lifecycle of one uid. Every Queued must be matched by
// exactly one Failed or Finished for the group counts to balance.
type Producer struct {
	b       *Broadcaster
	gid     string
	uid     string
	channel string
	latest  string
	header  Message
	group   Message
}

// Queued announces the uid at 0% and registers it as started in its group.
func (p *Producer) Queued(ctx context.Context, msg string) error {
	if err := p.broadcast(ctx, StateStarted, msg, intPtr(0), nil); err != nil {
		return err
	}
	if _, err := p.b.store.HSet(ctx, startedKey(p.gid), p.uid, p.uid); err != nil {
		return fmt.Errorf("failed to register %s as started: %w", p.uid, err)
	}
	return p.summary(ctx)
}

// Progress announces a percentage. Group bookkeeping is untouched.
func (p *Producer) Progress(ctx context.Context, msg string, pct int) error {
	return p.broadcast(ctx, StateStarted, msg, &pct, nil)
}

func (p *Producer) Failed(ctx context.Context, msg string) error {
	if err := p.broadcast(ctx, StateFailed, msg, nil, nil); err != nil {
		return err
	}
	return p.clearLatest(ctx)
}

// Finished announces success. aux is merged into the terminal message only.
func (p *Producer) Finished(ctx context.Context, msg string, aux map[string]interface{}) error {
	if err := p.broadcast(ctx, StateFinished, msg, nil, aux); err != nil {
		return err
	}
	return p.clearLatest(ctx)
}

func (p *Producer) broadcast(ctx context.Context, state, text string, pct *int, aux map[string]interface{}) error {
	msg := make(Message, len(p.header)+len(aux)+3)
	for k, v := range p.header {
		msg[k] = v
	}
	msg["state"] = state
	msg["message"] = text
	if pct != nil {
		msg["progress"] = *pct
	}
	for k, v := range aux {
		msg[k] = v
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode progress message: %w", err)
	}
	if _, err := p.b.store.Publish(ctx, p.channel, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}
	if _, err := p.b.store.HSet(ctx, p.latest, p.uid, string(payload)); err != nil {
		return fmt.Errorf("failed to mirror %s: %w", p.uid, err)
	}
	if swid, ok := msg["swid"]; ok {
		stamp := p.b.now().Format(time.RFC3339Nano)
		if _, err := p.b.store.HSet(ctx, SoftwareLatestKey, fmt.Sprint(swid), stamp); err != nil {
			return fmt.Errorf("failed to stamp software %v: %w", swid, err)
		}
	}
	p.b.observe(state)
	if p.b.logger != nil {
		p.b.logger.Debug("progress broadcast", nil, map[string]interface{}{
			"channel": p.channel,
			"uid":     p.uid,
			"state":   state,
		})
	}
	return nil
}

func (p *Producer) clearLatest(ctx context.Context) error {
	if _, err := p.b.store.HSet(ctx, doneKey(p.gid), p.uid, p.uid); err != nil {
		return fmt.Errorf("failed to mark %s done: %w", p.uid, err)
	}
	if _, err := p.b.store.HDel(ctx, p.latest, p.uid); err != nil {
		return fmt.Errorf("failed to clear mirror of %s: %w", p.uid, err)
	}
	return p.summary(ctx)
}

// summary publishes the group counts while work is outstanding and purges
// the group's bookkeeping once every started uid is done.
func (p *Producer) summary(ctx context.Context) error {
	procs, err := p.b.store.HLen(ctx, startedKey(p.gid))
	if err != nil {
		return fmt.Errorf("failed to count started: %w", err)
	}
	done, err := p.b.store.HLen(ctx, doneKey(p.gid))
	if err != nil {
		return fmt.Errorf("failed to count done: %w", err)
	}

	msg := make(Message, len(p.group)+2)
	for k, v := range p.group {
		msg[k] = v
	}
	msg["num_procs"] = procs
	msg["num_complete"] = done
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	if procs >= done {
		if _, err := p.b.store.Publish(ctx, p.channel, payload); err != nil {
			return fmt.Errorf("failed to publish summary: %w", err)
		}
	}
	if procs <= done {
		if _, err := p.b.store.HDel(ctx, p.latest, p.gid); err != nil {
			return fmt.Errorf("failed to clear group mirror: %w", err)
		}
		if _, err := p.b.store.Delete(ctx, startedKey(p.gid), doneKey(p.gid)); err != nil {
			return fmt.Errorf("failed to purge group %s: %w", p.gid, err)
		}
		return nil
	}
	if _, err := p.b.store.HSet(ctx, p.latest, p.gid, string(payload)); err != nil {
		return fmt.Errorf("failed to mirror group summary: %w", err)
	}
	return nil
}

func intPtr(i int) *int { return &i }
