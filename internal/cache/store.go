// internal/cache/store.go - Two-tier detection result cache
package cache

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"poolscan/internal"
	"poolscan/internal/config"
)

// entryVersion identifies the on-disk entry format. Files carrying a
// different version are treated as corrupt and fall back to a miss.
const entryVersion = 1

// Entry is a cached detection result for one parcel. Entries are only
// ever replaced whole, never partially updated.
type Entry struct {
	Key        string                   `json:"key"`
	Detections []internal.PoolDetection `json:"detections"`
	Timestamp  time.Time                `json:"timestamp"`
	Version    int                      `json:"version"`
}

// Store is a process-local cache with a fast in-memory tier backed by a
// durable one-file-per-key directory. Memory is a cache of durable, not
// the reverse: disk hits are promoted into memory on read.
type Store struct {
	mu         sync.Mutex
	mem        map[string]*Entry
	dir        string
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	logger     *slog.Logger

	hits          int64
	misses        int64
	totalRequests int64
}

// NewStore creates a cache store and ensures the durable directory exists
func NewStore(cfg *config.CacheConfig, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, internal.NewError(internal.ErrorCodeFileSystem, "failed to create cache directory", err)
	}

	return &Store{
		mem:        make(map[string]*Entry),
		dir:        cfg.Directory,
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
		logger:     logger,
	}, nil
}

// Get returns the cached entry for a key if present and not expired.
// Expired entries found in either tier are eagerly removed from that tier.
// Every call counts one request; a valid find counts one hit.
func (s *Store) Get(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++

	if entry, ok := s.mem[key]; ok {
		if s.validLocked(entry.Timestamp) {
			s.hits++
			return entry, true
		}
		delete(s.mem, key)
	}

	if entry := s.readFileLocked(key); entry != nil {
		if s.validLocked(entry.Timestamp) {
			s.mem[key] = entry
			s.hits++
			return entry, true
		}
		s.removeFileLocked(key)
	}

	s.misses++
	return nil, false
}

// Put writes a new entry for the key into both tiers, replacing any
// previous entry entirely. Durable-tier failures are logged and absorbed.
func (s *Store) Put(key string, detections []internal.PoolDetection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &Entry{
		Key:        key,
		Detections: detections,
		Timestamp:  s.now(),
		Version:    entryVersion,
	}

	s.mem[key] = entry
	s.writeFileLocked(entry)
	s.cleanupLocked()
}

// Clear removes a single key from both tiers
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.mem, key)
	s.removeFileLocked(key)
}

// ClearAll removes every entry from both tiers and resets statistics
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem = make(map[string]*Entry)

	files, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err == nil {
		for _, file := range files {
			if err := os.Remove(file); err != nil {
				s.logger.Warn("failed to remove cache file", "file", file, "error", err)
			}
		}
	}

	s.hits = 0
	s.misses = 0
	s.totalRequests = 0
}

// Stats reports cache statistics. Hit rate is 0 before any request.
func (s *Store) Stats() internal.CacheStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := internal.CacheStatistics{
		Size:          len(s.mem),
		Hits:          s.hits,
		Misses:        s.misses,
		TotalRequests: s.totalRequests,
	}
	if s.totalRequests > 0 {
		stats.HitRate = float64(s.hits) / float64(s.totalRequests)
	}

	var oldest time.Time
	for _, entry := range s.mem {
		if oldest.IsZero() || entry.Timestamp.Before(oldest) {
			oldest = entry.Timestamp
		}
	}
	if !oldest.IsZero() {
		stats.OldestEntry = &oldest
	}

	return stats
}

// validLocked checks the TTL validity rule: now - timestamp < TTL
func (s *Store) validLocked(timestamp time.Time) bool {
	return s.now().Sub(timestamp) < s.ttl
}

// cleanupLocked drops expired memory entries, evicts oldest entries above
// the capacity limit from both tiers, and sweeps expired durable files.
func (s *Store) cleanupLocked() {
	for key, entry := range s.mem {
		if !s.validLocked(entry.Timestamp) {
			delete(s.mem, key)
		}
	}

	if len(s.mem) > s.maxEntries {
		entries := make([]*Entry, 0, len(s.mem))
		for _, entry := range s.mem {
			entries = append(entries, entry)
		}
		// Oldest first; equal timestamps break by key so eviction stays
		// consistent between runs.
		sort.Slice(entries, func(i, j int) bool {
			if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
				return entries[i].Timestamp.Before(entries[j].Timestamp)
			}
			return entries[i].Key < entries[j].Key
		})

		for _, entry := range entries[:len(s.mem)-s.maxEntries] {
			delete(s.mem, entry.Key)
			s.removeFileLocked(entry.Key)
		}
	}

	s.sweepFilesLocked()
}

// sweepFilesLocked removes durable files whose modification time exceeds
// the TTL
func (s *Store) sweepFilesLocked() {
	files, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return
	}

	cutoff := s.now().Add(-s.ttl)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(file); err != nil {
				s.logger.Warn("failed to sweep expired cache file", "file", file, "error", err)
			}
		}
	}
}

// filePath maps a cache key to its durable file. Keys are escaped so
// arbitrary parcel identifiers cannot traverse out of the cache directory.
func (s *Store) filePath(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

// readFileLocked loads an entry from the durable tier. Missing files are a
// silent miss; unreadable or corrupt content is logged and treated as a miss.
func (s *Store) readFileLocked(key string) *Entry {
	data, err := os.ReadFile(s.filePath(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read cache file", "key", key, "error", err)
		}
		return nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("corrupt cache file", "key", key, "error", err)
		return nil
	}
	if entry.Version != entryVersion {
		s.logger.Warn("cache file version mismatch", "key", key, "version", entry.Version)
		return nil
	}

	return &entry
}

// writeFileLocked persists an entry via write-to-temp-then-rename so
// concurrent writers can never leave a torn file behind
func (s *Store) writeFileLocked(entry *Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("failed to encode cache entry", "key", entry.Key, "error", err)
		return
	}

	tmp, err := os.CreateTemp(s.dir, "entry-*.tmp")
	if err != nil {
		s.logger.Warn("failed to create cache temp file", "key", entry.Key, "error", err)
		return
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		s.logger.Warn("failed to write cache file", "key", entry.Key, "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		s.logger.Warn("failed to close cache temp file", "key", entry.Key, "error", err)
		return
	}

	if err := os.Rename(tmp.Name(), s.filePath(entry.Key)); err != nil {
		os.Remove(tmp.Name())
		s.logger.Warn("failed to replace cache file", "key", entry.Key, "error", err)
	}
}

// removeFileLocked deletes a key's durable file, absorbing failures
func (s *Store) removeFileLocked(key string) {
	if err := os.Remove(s.filePath(key)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove cache file", "key", key, "error", err)
	}
}
