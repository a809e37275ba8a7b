package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/paradox-gate/internal/domain"
)

const (
	// defaultMaxEntries is the high-water mark for the in-process map.
	defaultMaxEntries = 10000
	// evictFraction of entries (oldest-expiring first) are removed
	// when the high-water mark is exceeded.
	evictFraction = 5
)

type memoryEntry struct {
	doc     []byte
	version int64
	expires time.Time
}

// Memory is the in-process fallback store: a mutex-guarded map with
// TTL sweeping and a hard capacity bound.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
}

// NewMemory creates an in-process store with the default capacity.
func NewMemory() *Memory {
	return NewMemoryWithCapacity(defaultMaxEntries)
}

// NewMemoryWithCapacity creates an in-process store that evicts the
// oldest-expiring entries once more than maxEntries are held.
func NewMemoryWithCapacity(maxEntries int) *Memory {
	return &Memory{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
	}
}

// Put stores the session, checking the optimistic version against any
// existing entry. Expired entries are swept on every write.
func (m *Memory) Put(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked(time.Now())

	if cur, ok := m.entries[s.Token]; ok && cur.version != s.Version {
		return ErrVersionConflict
	}

	next := *s
	next.Version = s.Version + 1
	doc, err := encodeSession(&next)
	if err != nil {
		return err
	}

	m.entries[s.Token] = memoryEntry{doc: doc, version: next.Version, expires: s.Expiry}
	if len(m.entries) > m.maxEntries {
		m.evictLocked()
	}
	s.Version = next.Version
	return nil
}

// Get returns the session for token, or (nil, nil) if absent or past
// expiry.
func (m *Memory) Get(_ context.Context, token string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[token]
	if !ok {
		return nil, nil
	}
	if !e.expires.After(time.Now()) {
		delete(m.entries, token)
		return nil, nil
	}
	return decodeSession(e.doc)
}

// Delete removes the session for token.
func (m *Memory) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, token)
	return nil
}

// Scan visits every live session. Corrupt entries are logged and
// skipped, never fatal.
func (m *Memory) Scan(_ context.Context, fn func(*domain.Session) bool) error {
	m.mu.Lock()
	docs := make(map[string][]byte, len(m.entries))
	now := time.Now()
	for token, e := range m.entries {
		if e.expires.After(now) {
			docs[token] = e.doc
		}
	}
	m.mu.Unlock()

	for token, doc := range docs {
		s, err := decodeSession(doc)
		if err != nil {
			slog.Error("Skipping corrupt session entry", "token", token, "error", err)
			continue
		}
		if !fn(s) {
			return nil
		}
	}
	return nil
}

// Len returns the number of held entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) sweepLocked(now time.Time) {
	for token, e := range m.entries {
		if !e.expires.After(now) {
			delete(m.entries, token)
		}
	}
}

// evictLocked removes the oldest-expiring fifth of all entries.
func (m *Memory) evictLocked() {
	type victim struct {
		token   string
		expires time.Time
	}
	all := make([]victim, 0, len(m.entries))
	for token, e := range m.entries {
		all = append(all, victim{token: token, expires: e.expires})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].expires.Before(all[j].expires) })

	for _, v := range all[:len(all)/evictFraction] {
		delete(m.entries, v.token)
	}
}
