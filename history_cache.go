// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package textgen

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antflydb/textgen/lib/history"
	"github.com/bytedance/sonic/encoder"
	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultHistoryCacheTTL is the default lifetime of a cached history page
const DefaultHistoryCacheTTL = 30 * time.Second

// HistoryPage is an encoded history listing ready to be written out
type HistoryPage struct {
	Body  []byte
	ETag  string
	Count int
}

// HistoryCache fronts a history.Store. Listings are cached per page and
// concurrent identical loads are collapsed. Every Append drops all pages.
type HistoryCache struct {
	store   history.Store
	cache   *ttlcache.Cache[string, *HistoryPage]
	sfGroup singleflight.Group
	logger  *zap.Logger
	cancel  context.CancelFunc

	// mu orders cache fills against invalidation; epoch counts appends.
	mu    sync.Mutex
	epoch atomic.Uint64

	hits   atomic.Uint64
	misses atomic.Uint64
	sfHits atomic.Uint64
}

// NewHistoryCache creates a cache in front of store. ttl <= 0 uses
// DefaultHistoryCacheTTL.
func NewHistoryCache(store history.Store, ttl time.Duration, logger *zap.Logger) *HistoryCache {
	if ttl <= 0 {
		ttl = DefaultHistoryCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, *HistoryPage](ttl),
	)
	go cache.Start()

	ctx, cancel := context.WithCancel(context.Background())
	hc := &HistoryCache{
		store:  store,
		cache:  cache,
		logger: logger,
		cancel: cancel,
	}

	// Log cache stats periodically
	go hc.logStats(ctx)

	return hc
}

// Append stores a record and invalidates every cached page.
func (hc *HistoryCache) Append(ctx context.Context, prompt, generatedText string) (*history.Record, error) {
	rec, err := hc.store.Append(ctx, prompt, generatedText)
	if err != nil {
		return nil, err
	}
	hc.Invalidate()
	return rec, nil
}

// Invalidate drops all cached pages.
func (hc *HistoryCache) Invalidate() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.epoch.Add(1)
	hc.cache.DeleteAll()
}

// List returns the encoded page for opts, loading it from the store on a
// miss.
func (hc *HistoryCache) List(ctx context.Context, opts history.ListOptions) (*HistoryPage, error) {
	key := fmt.Sprintf("%d:%d", opts.Limit, opts.Offset)

	if item := hc.cache.Get(key); item != nil {
		hc.hits.Add(1)
		RecordCacheHit("history")
		return item.Value(), nil
	}

	epoch := hc.epoch.Load()
	sfKey := fmt.Sprintf("%d|%s", epoch, key)

	result, err, shared := hc.sfGroup.Do(sfKey, func() (any, error) {
		hc.misses.Add(1)
		RecordCacheMiss("history")

		records, err := hc.store.List(context.WithoutCancel(ctx), opts)
		if err != nil {
			return nil, err
		}
		page, err := encodeHistoryPage(records)
		if err != nil {
			return nil, err
		}

		hc.mu.Lock()
		if hc.epoch.Load() == epoch {
			hc.cache.Set(key, page, ttlcache.DefaultTTL)
		}
		hc.mu.Unlock()

		hc.logger.Debug("History page loaded",
			zap.Int("limit", opts.Limit),
			zap.Int("offset", opts.Offset),
			zap.Int("records", page.Count))

		return page, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		hc.sfHits.Add(1)
	}

	return result.(*HistoryPage), nil
}

func encodeHistoryPage(records []history.Record) (*HistoryPage, error) {
	items := make([]HistoryRecord, len(records))
	for i, r := range records {
		items[i] = HistoryRecord{
			Id:            int64(r.ID),
			Prompt:        r.Prompt,
			GeneratedText: r.GeneratedText,
		}
	}

	body, err := encoder.Encode(items, 0)
	if err != nil {
		return nil, fmt.Errorf("encoding history: %w", err)
	}

	return &HistoryPage{
		Body:  body,
		ETag:  fmt.Sprintf(`"%016x"`, xxhash.Sum64(body)),
		Count: len(items),
	}, nil
}

// Close stops the cache
func (hc *HistoryCache) Close() {
	hc.cancel()
	hc.cache.Stop()
}

// logStats logs cache statistics periodically
func (hc *HistoryCache) logStats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := hc.Stats()
			if stats.Hits > 0 || stats.Misses > 0 {
				hitRate := float64(stats.Hits) / float64(stats.Hits+stats.Misses) * 100
				fields := []zap.Field{
					zap.Uint64("hits", stats.Hits),
					zap.Uint64("misses", stats.Misses),
					zap.Uint64("singleflight_hits", stats.SingleflightHits),
					zap.Float64("hit_rate_pct", hitRate),
					zap.Int("items", stats.Items),
				}
				if count, err := hc.store.Count(ctx); err == nil {
					fields = append(fields, zap.Int64("records", count))
				}
				hc.logger.Info("History cache stats", fields...)
			}
		}
	}
}

// HistoryCacheStats holds cache statistics
type HistoryCacheStats struct {
	Hits             uint64 `json:"hits"`
	Misses           uint64 `json:"misses"`
	SingleflightHits uint64 `json:"singleflight_hits"`
	Items            int    `json:"items"`
}

// Stats returns cache statistics
func (hc *HistoryCache) Stats() HistoryCacheStats {
	return HistoryCacheStats{
		Hits:             hc.hits.Load(),
		Misses:           hc.misses.Load(),
		SingleflightHits: hc.sfHits.Load(),
		Items:            hc.cache.Len(),
	}
}
