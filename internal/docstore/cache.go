package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedStore is a read-through Redis cache in front of another Store.
// Gets and lists are cached for ttl; every write through the store drops
// the affected document and its collection listing.
type CachedStore struct {
	Store
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *zerolog.Logger
}

// NewCachedStore wraps next. A nil client or non-positive ttl disables caching.
func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *CachedStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CachedStore{Store: next, redis: client, ttl: ttl, prefix: "televet", logger: logger}
}

func (c *CachedStore) enabled() bool {
	return c.redis != nil && c.ttl > 0
}

func (c *CachedStore) docKey(collection, key string) string {
	return fmt.Sprintf("%s:doc:%s:%s", c.prefix, collection, key)
}

func (c *CachedStore) listKey(collection string) string {
	return fmt.Sprintf("%s:list:%s", c.prefix, collection)
}

func (c *CachedStore) Get(ctx context.Context, collection, key string) (Document, error) {
	var data Data
	if c.readCache(ctx, c.docKey(collection, key), &data) {
		return Document{Key: key, Data: data}, nil
	}
	doc, err := c.Store.Get(ctx, collection, key)
	if err != nil {
		return Document{}, err
	}
	c.writeCache(ctx, c.docKey(collection, key), doc.Data)
	return doc, nil
}

type cachedDoc struct {
	Key  string `json:"key"`
	Data Data   `json:"data"`
}

func (c *CachedStore) List(ctx context.Context, collection string) ([]Document, error) {
	var cached []cachedDoc
	if c.readCache(ctx, c.listKey(collection), &cached) {
		docs := make([]Document, len(cached))
		for i, d := range cached {
			docs[i] = Document{Key: d.Key, Data: d.Data}
		}
		return docs, nil
	}

	docs, err := c.Store.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	wrap := make([]cachedDoc, len(docs))
	for i, d := range docs {
		wrap[i] = cachedDoc{Key: d.Key, Data: d.Data}
	}
	c.writeCache(ctx, c.listKey(collection), wrap)
	return docs, nil
}

func (c *CachedStore) Set(ctx context.Context, collection, key string, data Data) error {
	defer c.invalidate(ctx, collection, key)
	return c.Store.Set(ctx, collection, key, data)
}

func (c *CachedStore) UpdateFields(ctx context.Context, collection, key string, fields Data) error {
	defer c.invalidate(ctx, collection, key)
	return c.Store.UpdateFields(ctx, collection, key, fields)
}

func (c *CachedStore) Delete(ctx context.Context, collection, key string) error {
	defer c.invalidate(ctx, collection, key)
	return c.Store.Delete(ctx, collection, key)
}

func (c *CachedStore) Add(ctx context.Context, collection string, data Data) (string, error) {
	key, err := c.Store.Add(ctx, collection, data)
	if err == nil {
		c.invalidate(ctx, collection, key)
	}
	return key, err
}

func (c *CachedStore) Mutate(ctx context.Context, collection, key string, fn MutateFunc) error {
	defer c.invalidate(ctx, collection, key)
	return c.Store.Mutate(ctx, collection, key, fn)
}

// Ping checks the wrapped store and Redis.
func (c *CachedStore) Ping(ctx context.Context) error {
	if err := c.Store.Ping(ctx); err != nil {
		return err
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (c *CachedStore) invalidate(ctx context.Context, collection, key string) {
	if !c.enabled() {
		return
	}
	if err := c.redis.Del(ctx, c.docKey(collection, key), c.listKey(collection)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("collection", collection).Str("key", key).Msg("Cache invalidation failed")
	}
}

func (c *CachedStore) readCache(ctx context.Context, key string, out any) bool {
	if !c.enabled() {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *CachedStore) writeCache(ctx context.Context, key string, val any) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}
