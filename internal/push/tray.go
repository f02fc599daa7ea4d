package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/printstore/internal/lock"
)

const showLockTTL = 5 * time.Second

// ErrNotificationNotFound is returned when a notification is no longer displayed.
var ErrNotificationNotFound = errors.New("push: notification not found")

// Tray is the platform surface that displays notifications. Showing a
// notification replaces any displayed one with the same tag.
type Tray interface {
	Show(ctx context.Context, n Notification) error
	Get(ctx context.Context, id string) (Notification, error)
	Close(ctx context.Context, id string) error
	List(ctx context.Context) ([]Notification, error)
}

// RedisTray keeps displayed notifications in a Redis hash keyed by tag, so a
// tag holds at most one notification.
type RedisTray struct {
	R      redis.UniversalClient
	Prefix string
	// TTL expires the id index of notifications nobody acts on.
	TTL time.Duration
}

func (t RedisTray) trayKey() string {
	if t.Prefix == "" {
		return "push:tray"
	}
	return t.Prefix + ":tray"
}

func (t RedisTray) idKey(id string) string {
	return fmt.Sprintf("%s:id:%s", t.trayKey(), id)
}

func (t RedisTray) ttl() time.Duration {
	if t.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return t.TTL
}

// Show implements Tray. Replacement of a tag is serialised across consumers
// so the id index never points at two notifications of one tag.
func (t RedisTray) Show(ctx context.Context, n Notification) error {
	if t.R == nil {
		return errors.New("push: tray redis client not configured")
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	locker := lock.Locker{R: t.R}
	return locker.WithLock(ctx, t.trayKey()+":lock:"+n.Tag, showLockTTL, func(ctx context.Context) error {
		return t.replace(ctx, n, raw)
	})
}

func (t RedisTray) replace(ctx context.Context, n Notification, raw []byte) error {
	previous, err := t.R.HGet(ctx, t.trayKey(), n.Tag).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	_, err = t.R.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if previous != "" {
			var old Notification
			if json.Unmarshal([]byte(previous), &old) == nil && old.ID != n.ID {
				p.Del(ctx, t.idKey(old.ID))
			}
		}
		p.HSet(ctx, t.trayKey(), n.Tag, raw)
		p.Set(ctx, t.idKey(n.ID), n.Tag, t.ttl())
		return nil
	})
	return err
}

// Get implements Tray.
func (t RedisTray) Get(ctx context.Context, id string) (Notification, error) {
	if t.R == nil {
		return Notification{}, errors.New("push: tray redis client not configured")
	}
	tag, err := t.R.Get(ctx, t.idKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Notification{}, ErrNotificationNotFound
	}
	if err != nil {
		return Notification{}, err
	}
	raw, err := t.R.HGet(ctx, t.trayKey(), tag).Result()
	if errors.Is(err, redis.Nil) {
		return Notification{}, ErrNotificationNotFound
	}
	if err != nil {
		return Notification{}, err
	}
	var n Notification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return Notification{}, fmt.Errorf("push: decode tray entry: %w", err)
	}
	if n.ID != id {
		return Notification{}, ErrNotificationNotFound
	}
	return n, nil
}

// Close implements Tray. Closing an already closed notification is a no-op.
// It takes the tag lock Show takes, so closing a replaced notification never
// removes its successor.
func (t RedisTray) Close(ctx context.Context, id string) error {
	n, err := t.Get(ctx, id)
	if errors.Is(err, ErrNotificationNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	locker := lock.Locker{R: t.R}
	return locker.WithLock(ctx, t.trayKey()+":lock:"+n.Tag, showLockTTL, func(ctx context.Context) error {
		return t.remove(ctx, n.Tag, id)
	})
}

func (t RedisTray) remove(ctx context.Context, tag, id string) error {
	current, err := t.R.HGet(ctx, t.trayKey(), tag).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	var shown Notification
	stillShown := current != "" && json.Unmarshal([]byte(current), &shown) == nil && shown.ID == id
	_, err = t.R.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if stillShown {
			p.HDel(ctx, t.trayKey(), tag)
		}
		p.Del(ctx, t.idKey(id))
		return nil
	})
	return err
}

// List implements Tray, newest first.
func (t RedisTray) List(ctx context.Context) ([]Notification, error) {
	if t.R == nil {
		return nil, errors.New("push: tray redis client not configured")
	}
	entries, err := t.R.HGetAll(ctx, t.trayKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]Notification, 0, len(entries))
	for _, raw := range entries {
		var n Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShownAt.After(out[j].ShownAt) })
	return out, nil
}
