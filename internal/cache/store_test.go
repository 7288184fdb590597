// internal/cache/store_test.go - Unit tests for the two-tier cache
package cache

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"poolscan/internal"
	"poolscan/internal/config"
)

func testStore(t *testing.T, maxEntries int) *Store {
	t.Helper()
	return testStoreAt(t, t.TempDir(), maxEntries)
}

func testStoreAt(t *testing.T, dir string, maxEntries int) *Store {
	t.Helper()

	cfg := &config.CacheConfig{
		Directory:  dir,
		TTL:        7 * 24 * time.Hour,
		MaxEntries: maxEntries,
	}
	store, err := NewStore(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func sampleDetections(confidence float64) []internal.PoolDetection {
	return []internal.PoolDetection{{Confidence: confidence, ClassID: 67}}
}

func TestPutThenGet(t *testing.T) {
	store := testStore(t, 10)

	store.Put("parcel-1", sampleDetections(0.9))

	entry, ok := store.Get("parcel-1")
	if !ok {
		t.Fatal("Get() = miss, want hit")
	}
	if entry.Key != "parcel-1" || entry.Version != entryVersion {
		t.Errorf("unexpected entry metadata: %+v", entry)
	}
	if !reflect.DeepEqual(entry.Detections, sampleDetections(0.9)) {
		t.Errorf("detections = %+v", entry.Detections)
	}
}

func TestGetExpired(t *testing.T) {
	store := testStore(t, 10)

	now := time.Now()
	store.now = func() time.Time { return now }
	store.Put("parcel-1", sampleDetections(0.9))

	// Advance the clock past the TTL; the entry must vanish from both tiers.
	store.now = func() time.Time { return now.Add(store.ttl + time.Minute) }

	if _, ok := store.Get("parcel-1"); ok {
		t.Fatal("Get() = hit on expired entry")
	}

	stats := store.Stats()
	if stats.Misses != 1 || stats.Hits != 0 {
		t.Errorf("expired get not counted as miss: %+v", stats)
	}
	if _, err := os.Stat(store.filePath("parcel-1")); !os.IsNotExist(err) {
		t.Error("expired durable file was not removed")
	}
}

func TestGetPromotesFromDisk(t *testing.T) {
	dir := t.TempDir()

	writer := testStoreAt(t, dir, 10)
	writer.Put("parcel-1", sampleDetections(0.8))

	// A fresh store shares the directory but has an empty memory tier.
	reader := testStoreAt(t, dir, 10)

	entry, ok := reader.Get("parcel-1")
	if !ok {
		t.Fatal("Get() = miss, want disk hit")
	}
	if entry.Detections[0].Confidence != 0.8 {
		t.Errorf("promoted entry detections = %+v", entry.Detections)
	}
	if reader.Stats().Size != 1 {
		t.Error("disk hit was not promoted into the memory tier")
	}
}

func TestCorruptFileIsMiss(t *testing.T) {
	store := testStore(t, 10)

	if err := os.WriteFile(store.filePath("parcel-1"), []byte("{garbage"), 0o644); err != nil {
		t.Fatalf("failed to plant corrupt file: %v", err)
	}

	if _, ok := store.Get("parcel-1"); ok {
		t.Error("Get() = hit on corrupt file, want miss")
	}
}

func TestVersionMismatchIsMiss(t *testing.T) {
	store := testStore(t, 10)

	payload := []byte(`{"key":"parcel-1","detections":[],"timestamp":"2099-01-01T00:00:00Z","version":99}`)
	if err := os.WriteFile(store.filePath("parcel-1"), payload, 0o644); err != nil {
		t.Fatalf("failed to plant versioned file: %v", err)
	}

	if _, ok := store.Get("parcel-1"); ok {
		t.Error("Get() = hit on unknown entry version, want miss")
	}
}

func TestEvictionKeepsNewest(t *testing.T) {
	store := testStore(t, 3)

	now := time.Now()
	for i, key := range []string{"a", "b", "c", "d"} {
		tick := now.Add(time.Duration(i) * time.Minute)
		store.now = func() time.Time { return tick }
		store.Put(key, sampleDetections(0.5))
	}

	if size := store.Stats().Size; size != 3 {
		t.Fatalf("size after eviction = %d, want 3", size)
	}
	if _, ok := store.Get("a"); ok {
		t.Error("oldest entry survived eviction")
	}
	for _, key := range []string{"b", "c", "d"} {
		if _, ok := store.Get(key); !ok {
			t.Errorf("entry %q was evicted, want kept", key)
		}
	}
	if _, err := os.Stat(store.filePath("a")); !os.IsNotExist(err) {
		t.Error("evicted entry still present in durable tier")
	}
}

func TestHitRate(t *testing.T) {
	store := testStore(t, 10)

	store.Put("parcel-1", sampleDetections(0.9))

	store.Get("parcel-1") // hit
	store.Get("parcel-1") // hit
	store.Get("missing")  // miss

	stats := store.Stats()
	if stats.Hits != 2 || stats.Misses != 1 || stats.TotalRequests != 3 {
		t.Fatalf("counters = %+v", stats)
	}
	want := 2.0 / 3.0
	if diff := stats.HitRate - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("hit rate = %f, want %f", stats.HitRate, want)
	}
}

func TestHitRateNoRequests(t *testing.T) {
	store := testStore(t, 10)
	if rate := store.Stats().HitRate; rate != 0 {
		t.Errorf("hit rate with no requests = %f, want 0", rate)
	}
}

func TestClear(t *testing.T) {
	store := testStore(t, 10)

	store.Put("parcel-1", sampleDetections(0.9))
	store.Clear("parcel-1")

	if _, ok := store.Get("parcel-1"); ok {
		t.Error("Get() = hit after Clear()")
	}
}

func TestClearAllResetsStats(t *testing.T) {
	store := testStore(t, 10)

	store.Put("parcel-1", sampleDetections(0.9))
	store.Put("parcel-2", sampleDetections(0.8))
	store.Get("parcel-1")
	store.Get("missing")

	store.ClearAll()

	stats := store.Stats()
	if stats.Size != 0 || stats.Hits != 0 || stats.Misses != 0 || stats.TotalRequests != 0 {
		t.Errorf("stats after ClearAll() = %+v", stats)
	}

	files, _ := filepath.Glob(filepath.Join(store.dir, "*.json"))
	if len(files) != 0 {
		t.Errorf("durable tier not emptied: %v", files)
	}
}

func TestOldestEntryTimestamp(t *testing.T) {
	store := testStore(t, 10)

	now := time.Now()
	first := now.Add(-time.Hour)

	store.now = func() time.Time { return first }
	store.Put("old", sampleDetections(0.5))
	store.now = func() time.Time { return now }
	store.Put("new", sampleDetections(0.5))

	stats := store.Stats()
	if stats.OldestEntry == nil {
		t.Fatal("OldestEntry = nil")
	}
	if !stats.OldestEntry.Equal(first) {
		t.Errorf("OldestEntry = %v, want %v", stats.OldestEntry, first)
	}
}
