package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector()

	c.ObserveRequest("POST", "/api/v1/score", 200, 15*time.Millisecond)
	c.ScoreComputed("full")
	c.ScoreComputed("full")
	c.CacheHit()
	c.CacheMiss()
	c.SetDependency("redis", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("POST", "/api/v1/score", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.ScoresComputed.WithLabelValues("full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheHits))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.DependencyUp.WithLabelValues("redis")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gmfm_scores_computed_total")
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveRequest("GET", "/", 200, time.Second)
	c.ScoreComputed("reduced")
	c.CacheHit()
	c.CacheMiss()
	c.SetDependency("x", true)
	c.LiveConnOpened()
	c.LiveConnClosed()
}
