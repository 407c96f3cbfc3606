package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// memoryTier is a bounded LRU. Expiry is checked on read.
type memoryTier struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List               // most-recent at front
	items map[string]*list.Element // key -> element holding Entry
}

func newMemoryTier(maxEntries int) *memoryTier {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &memoryTier{cap: maxEntries, ll: list.New(), items: make(map[string]*list.Element)}
}

// get returns the live entry for key. An expired entry is removed and
// reported through expired.
func (m *memoryTier) get(key string, now time.Time) (e Entry, ok bool, expired bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, found := m.items[key]
	if !found {
		return Entry{}, false, false
	}
	en := el.Value.(Entry)
	if en.Expired(now) {
		m.ll.Remove(el)
		delete(m.items, key)
		return Entry{}, false, true
	}
	m.ll.MoveToFront(el)
	return en, true, false
}

// put stores e and returns how many entries were evicted to make room.
func (m *memoryTier) put(e Entry) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Tier = TierMemory
	if el, ok := m.items[e.Key]; ok {
		el.Value = e
		m.ll.MoveToFront(el)
		return 0
	}
	m.items[e.Key] = m.ll.PushFront(e)
	evicted := 0
	for m.ll.Len() > m.cap {
		tail := m.ll.Back()
		if tail == nil {
			break
		}
		m.ll.Remove(tail)
		delete(m.items, tail.Value.(Entry).Key)
		evicted++
	}
	return evicted
}

func (m *memoryTier) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.ll.Remove(el)
		delete(m.items, key)
	}
}

// clear drops every key with the prefix; an empty prefix drops everything.
func (m *memoryTier) clear(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, el := range m.items {
		if strings.HasPrefix(key, prefix) {
			m.ll.Remove(el)
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

func (m *memoryTier) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}
