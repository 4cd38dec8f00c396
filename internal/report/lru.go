package report

import (
	"container/list"
	"sync"
)

// LRUStore keeps the most recent run records in memory and delegates to a
// backing Store on miss. Event logs can be large, so only a handful of runs
// stay resident; older ones are served from the backing store.
type LRUStore struct {
	mu    sync.Mutex
	cap   int
	back  Store
	order *list.List               // most recent at front, elements hold *Record
	items map[string]*list.Element // run ID to its element in order
}

// NewLRUStore creates an LRU cache with the given capacity that delegates
// to back on cache misses. Capacity must be >= 1.
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		order: list.New(),
		items: make(map[string]*list.Element, cap),
	}
}

// Save caches the record and delegates to the backing store.
func (s *LRUStore) Save(rec *Record) error {
	s.mu.Lock()
	s.insert(rec)
	s.mu.Unlock()

	return s.back.Save(rec)
}

// Load checks the cache first. On miss, loads from the backing store and
// promotes the record into the cache.
func (s *LRUStore) Load(runID string) (*Record, error) {
	s.mu.Lock()
	if el, ok := s.items[runID]; ok {
		s.order.MoveToFront(el)
		rec := el.Value.(*Record)
		s.mu.Unlock()
		return rec, nil
	}
	s.mu.Unlock()

	rec, err := s.back.Load(runID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.insert(rec)
	s.mu.Unlock()

	return rec, nil
}

// insert adds or refreshes a record at the front, evicting the least
// recently used entry past capacity. Callers hold mu.
func (s *LRUStore) insert(rec *Record) {
	if el, ok := s.items[rec.ID]; ok {
		el.Value = rec
		s.order.MoveToFront(el)
		return
	}
	s.items[rec.ID] = s.order.PushFront(rec)
	if s.order.Len() > s.cap {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*Record).ID)
	}
}
