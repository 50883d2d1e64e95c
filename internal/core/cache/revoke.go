package cache

import (
	"context"
	"time"
)

const revokedPrefix = "auth:revoked:"

// Revoke 记录登出的 jti，存活到 token 过期为止
func (c *Cache) Revoke(ctx context.Context, jti string, until time.Time) error {
	if !c.enabled() || jti == "" {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return c.RDB.Set(ctx, revokedPrefix+jti, 1, ttl).Err()
}

func (c *Cache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if !c.enabled() || jti == "" {
		return false, nil
	}
	n, err := c.RDB.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
