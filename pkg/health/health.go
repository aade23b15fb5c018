// Package health provides liveness/readiness checks for the weather service's
// storage dependencies, consumed by the /api/v1/health and /api/v1/health/deep
// HTTP routes.
package health

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status represents the health status.
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// HealthCheck is a single named probe.
type HealthCheck interface {
	Check(ctx context.Context) error
	Name() string
}

// HealthChecker runs a registered set of probes.
type HealthChecker struct {
	checks []HealthCheck
	mu     sync.RWMutex
}

// NewHealthChecker creates an empty HealthChecker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// Register adds a health check.
func (c *HealthChecker) Register(check HealthCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// Check runs every registered probe and returns its result keyed by name.
func (c *HealthChecker) Check(ctx context.Context) map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make(map[string]error, len(c.checks))
	for _, check := range c.checks {
		results[check.Name()] = check.Check(ctx)
	}
	return results
}

// Status summarizes Check's results into a single UP/DOWN status.
func (c *HealthChecker) Status(ctx context.Context) (Status, map[string]error) {
	results := c.Check(ctx)
	for _, err := range results {
		if err != nil {
			return StatusDown, results
		}
	}
	return StatusUp, results
}

// DatabaseHealthCheck pings the Postgres event/view store.
type DatabaseHealthCheck struct {
	name string
	db   *sql.DB
}

// NewDatabaseHealthCheck wraps db in a named probe. db may be nil, in which
// case Check always reports the zero-value error (useful in tests that only
// exercise wiring, not connectivity).
func NewDatabaseHealthCheck(name string, db *sql.DB) *DatabaseHealthCheck {
	return &DatabaseHealthCheck{name: name, db: db}
}

func (d *DatabaseHealthCheck) Check(ctx context.Context) error {
	if d.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return d.db.PingContext(ctx)
}

func (d *DatabaseHealthCheck) Name() string { return d.name }

// RedisHealthCheck pings the Redis view cache.
type RedisHealthCheck struct {
	name   string
	client *redis.Client
}

// NewRedisHealthCheck wraps client in a named probe. client may be nil.
func NewRedisHealthCheck(name string, client *redis.Client) *RedisHealthCheck {
	return &RedisHealthCheck{name: name, client: client}
}

func (r *RedisHealthCheck) Check(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisHealthCheck) Name() string { return r.name }

// HTTPHealthCheck checks reachability of an external HTTP dependency (e.g.
// the upstream weather provider) via a HEAD request.
type HTTPHealthCheck struct {
	name    string
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPHealthCheck constructs an HTTP probe against url.
func NewHTTPHealthCheck(name, url string, timeout time.Duration) *HTTPHealthCheck {
	return &HTTPHealthCheck{
		name:    name,
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (h *HTTPHealthCheck) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.url, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (h *HTTPHealthCheck) Name() string { return h.name }
