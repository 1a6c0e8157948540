package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leozw/quota-guardian/internal/kpi"
	"github.com/leozw/quota-guardian/internal/quota"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

const dashboardKey = "dashboard:fleet"

type Client struct {
	*redis.Client
	snapshotTTL time.Duration
}

func NewClient(redisURL string, snapshotTTL time.Duration) *Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{
			Addr: redisURL,
		}
	}

	return &Client{Client: redis.NewClient(opt), snapshotTTL: snapshotTTL}
}

func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.Set(ctx, key, data, expiration).Err()
}

func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

func snapshotKey(tenantID string) string {
	return fmt.Sprintf("quota:snapshot:%s", tenantID)
}

func (c *Client) CacheSnapshot(ctx context.Context, q *quota.TenantQuota) error {
	return c.SetJSON(ctx, snapshotKey(q.TenantID), q, c.snapshotTTL)
}

func (c *Client) GetCachedSnapshot(ctx context.Context, tenantID string) (*quota.TenantQuota, error) {
	var q quota.TenantQuota
	if err := c.GetJSON(ctx, snapshotKey(tenantID), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *Client) CacheDashboard(ctx context.Context, d *kpi.DashboardData) error {
	return c.SetJSON(ctx, dashboardKey, d, c.snapshotTTL)
}

func (c *Client) GetCachedDashboard(ctx context.Context) (*kpi.DashboardData, error) {
	var d kpi.DashboardData
	if err := c.GetJSON(ctx, dashboardKey, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// InvalidateDashboard drops the fleet dashboard so the next read rebuilds it.
func (c *Client) InvalidateDashboard(ctx context.Context) error {
	return c.Del(ctx, dashboardKey).Err()
}
