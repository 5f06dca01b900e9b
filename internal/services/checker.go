// Package services tracks the backing services (database, cache, catalog)
// and reports their health for the readiness endpoint and metrics.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/gmfm-scoring/internal/catalog"
)

// Checker reports whether one dependency is usable
type Checker interface {
	// Type returns the service type name
	Type() string

	// HealthCheck checks if the service is available
	HealthCheck(ctx context.Context) error
}

// BaseChecker provides common functionality for checkers
type BaseChecker struct {
	serviceType string
}

// Type returns the service type
func (c *BaseChecker) Type() string {
	return c.serviceType
}

// Pinger is satisfied by storage repositories and cache clients
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker checks a dependency through its Ping method
type PingChecker struct {
	BaseChecker
	target Pinger
}

// NewPingChecker wraps target under the given service type ("postgres", "sqlite", ...)
func NewPingChecker(serviceType string, target Pinger) *PingChecker {
	return &PingChecker{BaseChecker: BaseChecker{serviceType: serviceType}, target: target}
}

// HealthCheck pings the target
func (c *PingChecker) HealthCheck(ctx context.Context) error {
	return c.target.Ping(ctx)
}

// RedisChecker checks the score cache backend
type RedisChecker struct {
	BaseChecker
	client *redis.Client
}

// NewRedisChecker wraps an existing client
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{BaseChecker: BaseChecker{serviceType: "redis"}, client: client}
}

// HealthCheck verifies Redis connectivity
func (c *RedisChecker) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, address, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	host := address
	if i := strings.LastIndex(address, ":"); i >= 0 {
		host = address[:i]
	}
	slog.Info("redis connected", "host", host, "db", db)

	return client, nil
}

// CatalogChecker reports a catalog that failed to load
type CatalogChecker struct {
	BaseChecker
	catalog *catalog.Catalog
}

// NewCatalogChecker wraps the item catalog
func NewCatalogChecker(cat *catalog.Catalog) *CatalogChecker {
	return &CatalogChecker{BaseChecker: BaseChecker{serviceType: "catalog"}, catalog: cat}
}

// HealthCheck returns the catalog load error, if any
func (c *CatalogChecker) HealthCheck(context.Context) error {
	return c.catalog.Load()
}
