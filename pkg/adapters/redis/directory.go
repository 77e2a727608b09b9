package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the directory.
const DefaultPrefix = "ason:session:"

// Directory implements ports.SessionDirectory using Redis, so that several
// hub replicas share one view of the live sessions.
type Directory struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Directory)

// WithTTL expires entries that are not touched for ttl. A replica that dies
// without removing its sessions is cleaned up this way.
func WithTTL(ttl time.Duration) Option {
	return func(d *Directory) {
		d.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(d *Directory) {
		d.prefix = prefix
	}
}

// New creates a directory connected to address.
func New(address, password string, db int, opts ...Option) *Directory {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a directory from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Directory {
	d := &Directory{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Directory) key(id string) string {
	return d.prefix + id
}

func (d *Directory) indexKey() string {
	return d.prefix + "index"
}

// Register stores info unless a session with the same id exists.
func (d *Directory) Register(ctx context.Context, info ports.SessionInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := d.client.SetNX(ctx, d.key(info.ID), data, d.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	if !ok {
		return domain.ErrSessionExists
	}

	err = d.client.ZAdd(ctx, d.indexKey(), backend.Z{
		Score:  float64(info.StartedAt.Unix()),
		Member: info.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

// Touch records activity and refreshes the TTL.
func (d *Directory) Touch(ctx context.Context, id string, at time.Time) error {
	info, err := d.Get(ctx, id)
	if err != nil {
		return err
	}
	info.LastActivity = at

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	// XX: only overwrite an existing entry, a concurrent Remove wins
	ok, err := d.client.SetXX(ctx, d.key(id), data, d.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if !ok {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (d *Directory) Get(ctx context.Context, id string) (ports.SessionInfo, error) {
	val, err := d.client.Get(ctx, d.key(id)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return ports.SessionInfo{}, domain.ErrSessionNotFound
		}
		return ports.SessionInfo{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var info ports.SessionInfo
	if err := json.Unmarshal([]byte(val), &info); err != nil {
		return ports.SessionInfo{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return info, nil
}

func (d *Directory) Remove(ctx context.Context, id string) error {
	pipe := d.client.Pipeline()
	pipe.Del(ctx, d.key(id))
	pipe.ZRem(ctx, d.indexKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns sessions ordered by start time. Index members whose entry
// expired are pruned on the way.
func (d *Directory) List(ctx context.Context) ([]ports.SessionInfo, error) {
	ids, err := d.client.ZRange(ctx, d.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(ids) == 0 {
		return []ports.SessionInfo{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = d.key(id)
	}
	values, err := d.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	sessions := make([]ports.SessionInfo, 0, len(ids))
	var stale []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var info ports.SessionInfo
		if err := json.Unmarshal([]byte(s), &info); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session %s: %w", ids[i], err)
		}
		sessions = append(sessions, info)
	}

	if len(stale) > 0 {
		if err := d.client.ZRem(ctx, d.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
		}
	}
	return sessions, nil
}

// Close closes the redis client.
func (d *Directory) Close() error {
	return d.client.Close()
}
