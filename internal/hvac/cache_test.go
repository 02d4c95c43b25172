package hvac

import (
	"fmt"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/jluzny/hag/internal/models"
)

func TestCacheHitWithinTTL(t *testing.T) {
	is := is.New(t)
	c := newResultCache(500 * time.Millisecond)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	res := models.EvaluationResult{ShouldHeat: true, Reason: models.ReasonHeatingRequired}
	c.put("k", res, now)

	got, ok := c.get("k", now.Add(200*time.Millisecond))
	is.True(ok)
	is.Equal(got, res)
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	is := is.New(t)
	c := newResultCache(500 * time.Millisecond)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	c.put("k", models.EvaluationResult{ShouldHeat: true}, now)

	_, ok := c.get("k", now.Add(501*time.Millisecond))
	is.True(!ok)
	// the expired entry is dropped, not resurrected
	_, ok = c.get("k", now)
	is.True(!ok)
}

func TestCacheTreatsBackwardsClockAsExpired(t *testing.T) {
	is := is.New(t)
	c := newResultCache(time.Minute)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	c.put("k", models.EvaluationResult{ShouldHeat: true}, now)

	// wall clock stepped backwards: entry is "from the future"
	_, ok := c.get("k", now.Add(-time.Second))
	is.True(!ok)
}

func TestCacheDisabledWithZeroTTL(t *testing.T) {
	is := is.New(t)
	c := newResultCache(0)
	now := time.Now()

	c.put("k", models.EvaluationResult{ShouldHeat: true}, now)
	_, ok := c.get("k", now)
	is.True(!ok)
}

func TestCacheInvalidateDropsEverything(t *testing.T) {
	is := is.New(t)
	c := newResultCache(time.Minute)
	now := time.Now()

	c.put("a", models.EvaluationResult{ShouldHeat: true}, now)
	c.put("b", models.EvaluationResult{ShouldCool: true}, now)
	c.invalidate()

	_, ok := c.get("a", now)
	is.True(!ok)
	_, ok = c.get("b", now)
	is.True(!ok)
}

func TestCacheBoundedUnderBurst(t *testing.T) {
	is := is.New(t)
	c := newResultCache(time.Minute)
	now := time.Now()

	for i := 0; i < 4*pruneThreshold; i++ {
		c.put(fmt.Sprintf("k%d", i), models.EvaluationResult{}, now)
	}
	is.True(len(c.entries) <= pruneThreshold)
}
