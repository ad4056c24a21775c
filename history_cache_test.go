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
	"errors"
	"sync"
	"testing"

	"github.com/antflydb/textgen/lib/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHistoryCache_CachesPages(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	_, err := store.Append(ctx, "p", "t")
	require.NoError(t, err)

	hc := NewHistoryCache(store, 0, zap.NewNop())
	defer hc.Close()

	page1, err := hc.List(ctx, history.ListOptions{})
	require.NoError(t, err)
	page2, err := hc.List(ctx, history.ListOptions{})
	require.NoError(t, err)

	assert.Equal(t, int32(1), store.listCalls.Load())
	assert.Equal(t, page1.ETag, page2.ETag)
	assert.Equal(t, 1, page1.Count)
	assert.JSONEq(t, `[{"id":1,"prompt":"p","generated_text":"t"}]`, string(page1.Body))

	stats := hc.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)

	// Different page options are separate entries
	_, err = hc.List(ctx, history.ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.listCalls.Load())
}

func TestHistoryCache_AppendInvalidates(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	hc := NewHistoryCache(store, 0, zap.NewNop())
	defer hc.Close()

	page, err := hc.List(ctx, history.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Count)
	assert.JSONEq(t, `[]`, string(page.Body))

	rec, err := hc.Append(ctx, "hello", "hello world")
	require.NoError(t, err)
	assert.Equal(t, uint(1), rec.ID)

	page, err = hc.List(ctx, history.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, int32(2), store.listCalls.Load())
}

func TestHistoryCache_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{listErr: errors.New("boom")}
	hc := NewHistoryCache(store, 0, zap.NewNop())
	defer hc.Close()

	_, err := hc.List(ctx, history.ListOptions{})
	require.Error(t, err)

	store.mu.Lock()
	store.listErr = nil
	store.mu.Unlock()

	page, err := hc.List(ctx, history.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Count)
}

func TestHistoryCache_AppendFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	hc := NewHistoryCache(store, 0, zap.NewNop())
	defer hc.Close()

	_, err := hc.List(ctx, history.ListOptions{})
	require.NoError(t, err)

	store.appendErr = errors.New("read-only")
	_, err = hc.Append(ctx, "x", "y")
	require.Error(t, err)

	_, err = hc.List(ctx, history.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.listCalls.Load())
}

func TestHistoryCache_ConcurrentReadersAndWriters(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	hc := NewHistoryCache(store, 0, zap.NewNop())
	defer hc.Close()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := hc.Append(ctx, "p", "t")
			assert.NoError(t, err)
		}()
		go func(i int) {
			defer wg.Done()
			_, err := hc.List(ctx, history.ListOptions{Limit: i % 3})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// After all writes settle the listing reflects every record
	page, err := hc.List(ctx, history.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 10, page.Count)
}

func TestHistoryCache_WithGormStore(t *testing.T) {
	ctx := context.Background()
	store, err := history.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	hc := NewHistoryCache(store, 0, zap.NewNop())
	defer hc.Close()

	_, err = hc.Append(ctx, "Once upon a time", "Once upon a time, in a kingdom")
	require.NoError(t, err)

	page, err := hc.List(ctx, history.ListOptions{})
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"id":1,"prompt":"Once upon a time","generated_text":"Once upon a time, in a kingdom"}]`,
		string(page.Body))
}
