package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const opTimeout = 500 * time.Millisecond

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// Cache implements orders.Cache on Redis. Redis failures are logged and
// read as cache misses; Postgres stays authoritative.
type Cache struct {
	RDB *redis.Client
	Log *zap.Logger
}

type statusEntry struct {
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (c *Cache) Status(ctx context.Context, orderID int64) (orders.Status, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	raw, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if err != nil {
		c.warn(err, "status get", zap.Int64("order_id", orderID))
		return "", false
	}
	var e statusEntry
	if err := json.Unmarshal(raw, &e); err != nil || e.Status == "" {
		return "", false
	}
	return e.Status, true
}

func (c *Cache) SetStatus(ctx context.Context, orderID int64, s orders.Status) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	b, _ := json.Marshal(statusEntry{Status: s, UpdatedAt: time.Now().UTC()})
	err := c.RDB.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
	c.warn(err, "status set", zap.Int64("order_id", orderID))
}

func (c *Cache) OrderForKey(ctx context.Context, key string) (int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	v, err := c.RDB.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Result()
	if err != nil {
		c.warn(err, "idempotency get", zap.String("key", key))
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (c *Cache) RememberKey(ctx context.Context, key string, orderID int64) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	err := c.RDB.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, TTLIdempotency).Err()
	c.warn(err, "idempotency set", zap.String("key", key))
}

func (c *Cache) warn(err error, op string, fields ...zap.Field) {
	if err == nil || err == redis.Nil || c.Log == nil {
		return
	}
	c.Log.Warn("redis "+op+" failed", append(fields, zap.Error(err))...)
}
