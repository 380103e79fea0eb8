// Package storage holds the optional Redis-backed presence store. Presence
// is connect/disconnect only: a key per online user with a TTL safety net in
// case a crash skips the offline delete.
package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"chatwire/tools/errs"
)

const presenceTTL = 2 * time.Hour

type Config struct {
	Addr     string
	Password string
	DB       int
}

type Presence struct {
	rdb *redis.Client
}

// NewPresence dials Redis and verifies the connection.
func NewPresence(ctx context.Context, cfg Config) (*Presence, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errs.WrapMsg(err, "redis ping")
	}
	return &Presence{rdb: rdb}, nil
}

func presenceKey(userID string) string { return "chat:presence:" + userID }

// Online marks the user online, renewing the TTL on repeat connects.
func (p *Presence) Online(ctx context.Context, userID string) error {
	return p.rdb.Set(ctx, presenceKey(userID), "1", presenceTTL).Err()
}

// Offline deletes the user's presence key.
func (p *Presence) Offline(ctx context.Context, userID string) error {
	return p.rdb.Del(ctx, presenceKey(userID)).Err()
}

// Lookup reports whether the user currently has a presence key.
func (p *Presence) Lookup(ctx context.Context, userID string) (bool, error) {
	n, err := p.rdb.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, errs.Wrap(err)
	}
	return n > 0, nil
}

func (p *Presence) Close() error { return p.rdb.Close() }
