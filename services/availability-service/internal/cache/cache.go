// Package cache holds composed owner day views keyed by (owner, date).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
	"github.com/redis/go-redis/v9"
)

// Version is the invalidation generation of one (owner, date) entry, read
// before a day is composed. Set stores the view only if no invalidation
// happened since.
type Version struct {
	owner int64
	date  int64
	ok    bool
}

// DayCache stores the owner's view of a day. Public views are derived from it
// by stripping booking details, so one entry serves both audiences.
type DayCache interface {
	Get(ctx context.Context, ownerID, date string) (model.DayView, bool)
	Version(ctx context.Context, ownerID, date string) Version
	// Set is a no-op when v is stale or was not read successfully.
	Set(ctx context.Context, ownerID string, view model.DayView, v Version)
	// Invalidate drops one date. It must run before a write touching that date
	// is acknowledged.
	Invalidate(ctx context.Context, ownerID, date string) error
	// InvalidateOwner drops every cached date of the owner, for weekly rule and
	// settings changes.
	InvalidateOwner(ctx context.Context, ownerID string) error
}

// generationTTL outlives any compose by a wide margin; an expired counter
// restarts at zero, which only matters if a compose spans the whole TTL.
const generationTTL = 24 * time.Hour

type Redis struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

var _ DayCache = (*Redis)(nil)

func NewRedis(rdb redis.UniversalClient, ttl time.Duration, prefix string) *Redis {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if prefix == "" {
		prefix = "avail"
	}
	return &Redis{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *Redis) dayKey(ownerID, date string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, ownerID, date)
}

// indexKey names the set of dates cached for an owner.
func (c *Redis) indexKey(ownerID string) string {
	return fmt.Sprintf("%s:%s:dates", c.prefix, ownerID)
}

func (c *Redis) ownerGenKey(ownerID string) string {
	return fmt.Sprintf("%s:%s:gen", c.prefix, ownerID)
}

func (c *Redis) dateGenKey(ownerID, date string) string {
	return fmt.Sprintf("%s:%s:%s:gen", c.prefix, ownerID, date)
}

func (c *Redis) Get(ctx context.Context, ownerID, date string) (model.DayView, bool) {
	raw, err := c.rdb.Get(ctx, c.dayKey(ownerID, date)).Bytes()
	if err != nil {
		return model.DayView{}, false
	}
	var view model.DayView
	if err := json.Unmarshal(raw, &view); err != nil {
		return model.DayView{}, false
	}
	return view, true
}

func (c *Redis) Version(ctx context.Context, ownerID, date string) Version {
	v, err := readVersion(ctx, c.rdb, c.ownerGenKey(ownerID), c.dateGenKey(ownerID, date))
	if err != nil {
		return Version{}
	}
	return v
}

type mgetter interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func readVersion(ctx context.Context, r mgetter, ownerKey, dateKey string) (Version, error) {
	vals, err := r.MGet(ctx, ownerKey, dateKey).Result()
	if err != nil {
		return Version{}, err
	}
	owner, err := counter(vals[0])
	if err != nil {
		return Version{}, err
	}
	date, err := counter(vals[1])
	if err != nil {
		return Version{}, err
	}
	return Version{owner: owner, date: date, ok: true}, nil
}

func counter(v any) (int64, error) {
	switch s := v.(type) {
	case nil:
		return 0, nil
	case string:
		var n int64
		_, err := fmt.Sscan(s, &n)
		return n, err
	default:
		return 0, fmt.Errorf("unexpected generation value %T", v)
	}
}

// Set writes the view under WATCH on both generation counters, so a racing
// invalidation either lands before the check and the write is skipped, or
// after the write and deletes it.
func (c *Redis) Set(ctx context.Context, ownerID string, view model.DayView, v Version) {
	if !v.ok {
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	ownerKey, dateKey := c.ownerGenKey(ownerID), c.dateGenKey(ownerID, view.Date)
	idx := c.indexKey(ownerID)

	_ = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readVersion(ctx, tx, ownerKey, dateKey)
		if err != nil {
			return err
		}
		if cur != v {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.dayKey(ownerID, view.Date), data, c.ttl)
			pipe.SAdd(ctx, idx, view.Date)
			pipe.Expire(ctx, idx, 2*c.ttl)
			return nil
		})
		return err
	}, ownerKey, dateKey)
}

var errStale = errors.New("cache: stale version")

func (c *Redis) Invalidate(ctx context.Context, ownerID, date string) error {
	gen := c.dateGenKey(ownerID, date)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gen)
		pipe.Expire(ctx, gen, generationTTL)
		pipe.Del(ctx, c.dayKey(ownerID, date))
		pipe.SRem(ctx, c.indexKey(ownerID), date)
		return nil
	})
	return err
}

func (c *Redis) InvalidateOwner(ctx context.Context, ownerID string) error {
	gen := c.ownerGenKey(ownerID)
	if _, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gen)
		pipe.Expire(ctx, gen, generationTTL)
		return nil
	}); err != nil {
		return err
	}

	idx := c.indexKey(ownerID)
	dates, err := c.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(dates)+1)
	for _, d := range dates {
		keys = append(keys, c.dayKey(ownerID, d))
	}
	keys = append(keys, idx)
	return c.rdb.Del(ctx, keys...).Err()
}

// Noop is used when no Redis is configured.
type Noop struct{}

var _ DayCache = Noop{}

func (Noop) Get(context.Context, string, string) (model.DayView, bool) { return model.DayView{}, false }
func (Noop) Version(context.Context, string, string) Version           { return Version{} }
func (Noop) Set(context.Context, string, model.DayView, Version)       {}
func (Noop) Invalidate(context.Context, string, string) error          { return nil }
func (Noop) InvalidateOwner(context.Context, string) error             { return nil }
