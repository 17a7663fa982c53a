package cascade

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCacheKeyNormalizesQuery(t *testing.T) {
	a := NewCacheKey(LevelState, IDPtr("13"), "  Córdoba ")
	b := NewCacheKey(LevelState, IDPtr("13"), "cordoba")
	if a != b {
		t.Fatalf("expected equal keys, got %v and %v", a, b)
	}
	if a.String() != "1|13|cordoba" {
		t.Fatalf("unexpected key string %q", a.String())
	}
	root := NewCacheKey(LevelCountry, nil, "")
	if root.HasParent || root.String() != "0|-|" {
		t.Fatalf("unexpected root key %+v %q", root, root.String())
	}
	if NewCacheKey(LevelState, IDPtr(""), "x") == NewCacheKey(LevelState, nil, "x") {
		t.Fatalf("empty parent id must differ from no parent")
	}
}

func TestCacheFlightKeysAreDistinct(t *testing.T) {
	pairs := [][2]CacheKey{
		{NewCacheKey(LevelState, nil, "q"), NewCacheKey(LevelState, IDPtr("-"), "q")},
		{NewCacheKey(LevelState, IDPtr("a|b"), "c"), NewCacheKey(LevelState, IDPtr("a"), "b|c")},
		{NewCacheKey(LevelState, IDPtr(""), "x"), NewCacheKey(LevelState, nil, "x")},
	}
	for _, pair := range pairs {
		if pair[0].flightKey() == pair[1].flightKey() {
			t.Fatalf("flight keys collide for %+v and %+v: %q", pair[0], pair[1], pair[0].flightKey())
		}
	}
}

func TestScopedDropsForeignEntities(t *testing.T) {
	kept, ok := scoped(IDPtr("2"), []Entity{rioCuarto, santiago, villaMaria})
	if ok {
		t.Fatalf("expected foreign entity to be reported")
	}
	if got := ids(kept); !reflect.DeepEqual(got, []EntityID{"201", "202"}) {
		t.Fatalf("unexpected scoped entities %v", got)
	}
	all := []Entity{argentina, chile}
	kept, ok = scoped(nil, all)
	if !ok || len(kept) != 2 {
		t.Fatalf("nil parent must keep everything, got %v %v", ids(kept), ok)
	}
}

func TestCacheExactKeyMatch(t *testing.T) {
	cache := NewSuggestionCache()
	cache.Put(LevelState, IDPtr("13"), "spring", []Entity{entity("9", "Springfield", "13")})

	if _, ok := cache.Get(LevelState, IDPtr("13"), "spr"); ok {
		t.Fatalf("prefix must not be served")
	}
	if _, ok := cache.Get(LevelState, IDPtr("250"), "spring"); ok {
		t.Fatalf("other parent must not be served")
	}
	got, ok := cache.Get(LevelState, IDPtr("13"), "SPRING")
	if !ok || len(got) != 1 {
		t.Fatalf("expected normalized hit, got %v %v", got, ok)
	}

	cache.Put(LevelState, IDPtr("13"), "spring", nil)
	got, ok = cache.Get(LevelState, IDPtr("13"), "spring")
	if !ok || got == nil || len(got) != 0 {
		t.Fatalf("expected overwrite with empty list, got %v %v", got, ok)
	}
}

func TestCacheInvalidateSubtree(t *testing.T) {
	cache := NewSuggestionCache()
	cache.Put(LevelCountry, nil, "", []Entity{argentina})
	cache.Put(LevelState, IDPtr("13"), "", []Entity{cordoba})
	cache.Put(LevelState, IDPtr("250"), "", []Entity{santiago})
	cache.Put(LevelLocality, IDPtr("2"), "", []Entity{rioCuarto})

	removed := cache.InvalidateSubtree(LevelState, IDPtr("13"))
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected root entry kept, got %d entries", cache.Len())
	}
	if _, ok := cache.Get(LevelCountry, nil, ""); !ok {
		t.Fatalf("expected root entry kept")
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after clear")
	}
}

func TestCacheTTLExpiresEntries(t *testing.T) {
	cache := NewSuggestionCache(CacheWithTTL(20 * time.Millisecond))
	cache.Put(LevelCountry, nil, "", []Entity{argentina})
	if _, ok := cache.Get(LevelCountry, nil, ""); !ok {
		t.Fatalf("expected fresh entry")
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := cache.Get(LevelCountry, nil, ""); ok {
		t.Fatalf("expected entry expired")
	}
}

func TestCacheCapacityEvicts(t *testing.T) {
	cache := NewSuggestionCache(CacheWithCapacity(2))
	cache.Put(LevelCountry, nil, "a", nil)
	cache.Put(LevelCountry, nil, "b", nil)
	cache.Put(LevelCountry, nil, "c", nil)
	if cache.Len() != 2 {
		t.Fatalf("expected capacity respected, got %d", cache.Len())
	}
	if _, ok := cache.Get(LevelCountry, nil, "a"); ok {
		t.Fatalf("expected oldest entry evicted")
	}
}

func TestCacheLoadCollapsesConcurrentMisses(t *testing.T) {
	cache := NewSuggestionCache()
	key := NewCacheKey(LevelState, IDPtr("13"), "cor")

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]Entity, error) {
		calls.Add(1)
		<-release
		return []Entity{cordoba}, nil
	}

	const callers = 8
	var started, wg sync.WaitGroup
	started.Add(callers)
	wg.Add(callers)
	results := make(chan []Entity, callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			started.Done()
			entities, hit, err := cache.load(context.Background(), key, fetch)
			if err != nil || hit {
				t.Errorf("unexpected load result hit=%v err=%v", hit, err)
			}
			results <- entities
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one fetch, got %d", got)
	}
	for entities := range results {
		if len(entities) != 1 || entities[0].ID != "2" {
			t.Fatalf("unexpected shared result %v", entities)
		}
	}
	if cache.Len() != 0 {
		t.Fatalf("load must not write the cache")
	}
}

func TestCacheLoadServesHitsAndPropagatesErrors(t *testing.T) {
	cache := NewSuggestionCache()
	key := NewCacheKey(LevelCountry, nil, "")
	boom := errors.New("boom")

	_, _, err := cache.load(context.Background(), key, func(context.Context) ([]Entity, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}

	cache.put(key, []Entity{argentina})
	entities, hit, err := cache.load(context.Background(), key, func(context.Context) ([]Entity, error) {
		t.Fatalf("fetch must not run on hit")
		return nil, nil
	})
	if err != nil || !hit || len(entities) != 1 {
		t.Fatalf("expected hit, got %v %v %v", entities, hit, err)
	}
}
