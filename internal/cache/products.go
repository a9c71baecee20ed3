package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/fjod/shop_client/internal/domain"
	"github.com/redis/go-redis/v9"
)

var ErrProductCacheMiss = errors.New("product cache miss")

// ProductCache holds product snapshots so repeated adds and reconciliations
// do not refetch unchanged products.
type ProductCache interface {
	Get(ctx context.Context, productID string) (*domain.Product, error)
	Set(ctx context.Context, product domain.Product) error
}

// MemoryProductCache is the default single-process snapshot cache.
type MemoryProductCache struct {
	mu       sync.RWMutex
	products map[string]productEntry
	ttl      time.Duration
}

type productEntry struct {
	product   domain.Product
	expiresAt time.Time
}

func NewMemoryProductCache(ttl time.Duration) *MemoryProductCache {
	return &MemoryProductCache{
		products: make(map[string]productEntry),
		ttl:      ttl,
	}
}

func (m *MemoryProductCache) Get(_ context.Context, productID string) (*domain.Product, error) {
	m.mu.RLock()
	entry, ok := m.products[productID]
	m.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrProductCacheMiss
	}
	product := entry.product
	return &product, nil
}

func (m *MemoryProductCache) Set(_ context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = productEntry{
		product:   product,
		expiresAt: time.Now().Add(m.ttl),
	}
	return nil
}

// RedisProductCache shares snapshots out of process, for setups that already
// run a local Redis.
type RedisProductCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisProductCache(client *redis.Client) *RedisProductCache {
	return &RedisProductCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

func (r *RedisProductCache) Get(ctx context.Context, productID string) (*domain.Product, error) {
	data, err := r.client.Get(ctx, productKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrProductCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var product domain.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("unmarshal product failed: %w", err)
	}
	return &product, nil
}

func (r *RedisProductCache) Set(ctx context.Context, product domain.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, productKey(product.ID), string(data), ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func productKey(productID string) string {
	return fmt.Sprintf("product:%s", productID)
}
