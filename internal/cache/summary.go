// Package cache provides the local daily summary cache: per-(owner, subject,
// day) rolling counters that answer "what have I already logged today"
// without a remote round trip.
package cache

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/pettrail/pettrail/internal/clock"
	"github.com/pettrail/pettrail/internal/kv"
	"github.com/pettrail/pettrail/pkg/models"
)

// keyPrefix namespaces cache entries inside the shared kv store, keeping
// unrelated keys (settings and the like) out of eviction sweeps.
const keyPrefix = "summary/"

// SummaryCache is a best-effort accelerator, never a system of record.
// Corrupt or lost entries degrade duplicate checks, they never block writes.
type SummaryCache struct {
	store kv.Store
	clock clock.Clock
}

// New creates a summary cache over the given kv store.
func New(store kv.Store, clk clock.Clock) *SummaryCache {
	return &SummaryCache{store: store, clock: clk}
}

// Key returns the deterministic cache key for one (owner, subject, date).
func Key(ownerID, subjectID, date string) string {
	return fmt.Sprintf("%s%s/%s/%s", keyPrefix, ownerID, subjectID, date)
}

// Get returns the entry for (owner, subject) only when its date is today.
// A stale entry is evicted and nil is returned. Malformed persisted data is
// treated as a miss.
func (c *SummaryCache) Get(ctx context.Context, ownerID, subjectID string) (*models.DailySummary, error) {
	today := c.today()
	key := Key(ownerID, subjectID, today)

	value, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		// The entry may exist under an older date key; sweep it so the
		// store does not accumulate dead days for this subject.
		if err := c.evictStale(ctx, ownerID, subjectID, today); err != nil {
			log.Warn().Err(err).Str("owner", ownerID).Str("subject", subjectID).
				Msg("failed to evict stale summary entries")
		}
		return nil, nil
	}

	var summary models.DailySummary
	if err := json.Unmarshal(value, &summary); err != nil {
		// Fail open: corruption is absorbed as a miss.
		log.Warn().Err(err).Str("key", key).Msg("corrupt summary cache entry, treating as miss")
		if delErr := c.store.Delete(ctx, key); delErr != nil {
			log.Warn().Err(delErr).Str("key", key).Msg("failed to drop corrupt summary cache entry")
		}
		return nil, nil
	}

	if summary.Date != today {
		if err := c.store.Delete(ctx, key); err != nil {
			return nil, nil
		}
		return nil, nil
	}

	return &summary, nil
}

// RecordMedication increments today's medication counters for the subject.
// The distinct-name set grows idempotently; the count and dose total always do.
func (c *SummaryCache) RecordMedication(ctx context.Context, ownerID, subjectID, name string, dosage float64) error {
	summary, err := c.loadOrCreate(ctx, ownerID, subjectID)
	if err != nil {
		return err
	}
	summary.AddMedication(name, dosage)
	return c.save(ctx, ownerID, subjectID, summary)
}

// RecordFluid increments today's fluid counters for the subject.
func (c *SummaryCache) RecordFluid(ctx context.Context, ownerID, subjectID string, volumeML float64) error {
	summary, err := c.loadOrCreate(ctx, ownerID, subjectID)
	if err != nil {
		return err
	}
	summary.AddFluid(volumeML)
	return c.save(ctx, ownerID, subjectID, summary)
}

// EvictExpired removes every cache entry whose date is not today, leaving
// non-cache keys untouched.
func (c *SummaryCache) EvictExpired(ctx context.Context) error {
	today := c.today()

	keys, err := c.store.Keys(ctx, keyPrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, "/"+today) {
			if err := c.store.Delete(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvictForSubject removes the entries for one (owner, subject) pair only.
func (c *SummaryCache) EvictForSubject(ctx context.Context, ownerID, subjectID string) error {
	prefix := fmt.Sprintf("%s%s/%s/", keyPrefix, ownerID, subjectID)

	keys, err := c.store.Keys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (c *SummaryCache) today() string {
	return c.clock.Now().Format("2006-01-02")
}

func (c *SummaryCache) loadOrCreate(ctx context.Context, ownerID, subjectID string) (*models.DailySummary, error) {
	summary, err := c.Get(ctx, ownerID, subjectID)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		summary = models.NewDailySummary(c.clock.Now())
	}
	return summary, nil
}

func (c *SummaryCache) save(ctx context.Context, ownerID, subjectID string, summary *models.DailySummary) error {
	value, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, Key(ownerID, subjectID, summary.Date), value)
}

func (c *SummaryCache) evictStale(ctx context.Context, ownerID, subjectID, today string) error {
	prefix := fmt.Sprintf("%s%s/%s/", keyPrefix, ownerID, subjectID)
	keys, err := c.store.Keys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, "/"+today) {
			if err := c.store.Delete(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}
