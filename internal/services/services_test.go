package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/gmfm-scoring/internal/catalog"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type recorder struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (r *recorder) SetDependency(name string, up bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[name] = up
}

func (r *recorder) get(name string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	up, ok := r.seen[name]
	return up, ok
}

func TestRegistryStatus(t *testing.T) {
	reg := NewRegistry()
	reg.Register("sqlite", NewPingChecker("sqlite", fakePinger{}))
	reg.Register("redis", NewPingChecker("redis", fakePinger{err: errors.New("connection refused")}))
	reg.Register("catalog", NewCatalogChecker(catalog.New(catalog.EmbeddedSource())))

	assert.Equal(t, []string{"catalog", "redis", "sqlite"}, reg.List())
	assert.Equal(t, "sqlite", reg.Get("sqlite").Type())

	status, healthy := reg.Status(context.Background())
	assert.False(t, healthy)
	assert.Equal(t, "ok", status["sqlite"])
	assert.Equal(t, "ok", status["catalog"])
	assert.Equal(t, "connection refused", status["redis"])

	reg.Unregister("redis")
	_, healthy = reg.Status(context.Background())
	assert.True(t, healthy)
}

func TestCatalogCheckerReportsLoadFailure(t *testing.T) {
	c := NewCatalogChecker(catalog.New(catalog.BytesSource("bad", []byte("- nope"))))
	assert.ErrorIs(t, c.HealthCheck(context.Background()), catalog.ErrCatalogUnavailable)
}

func TestMonitorRecordsOutcomes(t *testing.T) {
	reg := NewRegistry()
	reg.Register("db", NewPingChecker("sqlite", fakePinger{}))
	reg.Register("cache", NewPingChecker("redis", fakePinger{err: errors.New("down")}))

	rec := &recorder{seen: make(map[string]bool)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	NewMonitor(reg, rec, time.Hour).Start(ctx)

	require.Eventually(t, func() bool {
		_, okDB := rec.get("db")
		_, okCache := rec.get("cache")
		return okDB && okCache
	}, time.Second, 10*time.Millisecond)

	up, _ := rec.get("db")
	assert.True(t, up)
	up, _ = rec.get("cache")
	assert.False(t, up)
}
