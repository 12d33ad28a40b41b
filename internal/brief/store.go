package brief

import (
	"sort"
	"sync"
	"time"
)

type Source int

const (
	// SourceLocal marks a change made through this store's Update.
	SourceLocal Source = iota
	// SourceExternal marks a document that replaced local state after another writer stored it.
	SourceExternal
)

func (s Source) String() string {
	if s == SourceExternal {
		return "external"
	}
	return "local"
}

// Change is one published document. Version counts every mutation and
// replacement of the store, starting at zero.
type Change struct {
	Document Document
	Source   Source
	Version  uint64
}

// Store holds the single in-memory brief. All mutation goes through Update
// or Replace, and subscribers see every resulting document in order.
type Store struct {
	mu      sync.Mutex
	doc     Document
	version uint64
	clock   func() time.Time

	// notifyMu keeps subscriber calls in mutation order without holding mu.
	notifyMu sync.Mutex
	subsMu   sync.RWMutex
	subs     map[int]func(Change)
	nextSub  int
}

func NewStore(doc Document, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		doc:   Clone(doc),
		clock: clock,
		subs:  map[int]func(Change){},
	}
}

// Now is the store clock in Unix milliseconds.
func (s *Store) Now() int64 {
	return s.clock().UnixMilli()
}

func (s *Store) Snapshot() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Clone(s.doc)
}

func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Update applies mutator to a copy of the current document.
func (s *Store) Update(mutator func(Document) Document) Document {
	doc, _ := s.Apply(func(current Document) (Document, error) {
		return mutator(current), nil
	})
	return doc
}

// Apply is Update for mutators that may refuse. A non-nil error leaves the
// document unchanged and publishes nothing.
func (s *Store) Apply(mutator func(Document) (Document, error)) (Document, error) {
	s.mu.Lock()
	next, err := mutator(Clone(s.doc))
	if err != nil {
		current := Clone(s.doc)
		s.mu.Unlock()
		return current, err
	}
	s.doc = Clone(next)
	s.version++
	version := s.version
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.publish(Change{Document: next, Source: SourceLocal, Version: version})
	return Clone(next), nil
}

// Replace swaps in a document written elsewhere. No merge happens.
func (s *Store) Replace(doc Document) {
	s.mu.Lock()
	s.replaceLocked(doc)
}

// ReplaceIf is Replace that only happens while the store is still at
// version. It returns the version after the call and whether it replaced.
func (s *Store) ReplaceIf(doc Document, version uint64) (uint64, bool) {
	s.mu.Lock()
	if s.version != version {
		current := s.version
		s.mu.Unlock()
		return current, false
	}
	return s.replaceLocked(doc), true
}

// replaceLocked is called with mu held and releases it.
func (s *Store) replaceLocked(doc Document) uint64 {
	s.doc = Clone(doc)
	s.version++
	version := s.version
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.publish(Change{Document: Clone(doc), Source: SourceExternal, Version: version})
	return version
}

// Subscribe registers fn for every later change. Subscribers run
// synchronously and must not call Update or Replace themselves.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	cancel, _ = s.SubscribeAt(fn)
	return cancel
}

// SubscribeAt is Subscribe that also returns the version the store was at
// when fn was registered. Every change with a higher version reaches fn.
func (s *Store) SubscribeAt(fn func(Change)) (cancel func(), version uint64) {
	s.mu.Lock()
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()
	version = s.version
	s.mu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}, version
}

func (s *Store) publish(change Change) {
	s.subsMu.RLock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	s.subsMu.RUnlock()
	sort.Ints(ids)

	for _, id := range ids {
		s.subsMu.RLock()
		fn, ok := s.subs[id]
		s.subsMu.RUnlock()
		if !ok {
			continue
		}
		fn(Change{Document: Clone(change.Document), Source: change.Source, Version: change.Version})
	}
}
