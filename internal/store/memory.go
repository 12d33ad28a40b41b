package store

import (
	"context"
	"sync"
	"time"
)

// Memory keeps records in process and fans writes out to subscribers.
type Memory struct {
	mu      sync.Mutex
	records map[string]Record
	subs    map[string]map[*memorySub]struct{}
}

type memorySub struct {
	emit func(Change)
}

func NewMemory() *Memory {
	return &Memory{
		records: map[string]Record{},
		subs:    map[string]map[*memorySub]struct{}{},
	}
}

func (m *Memory) Load(_ context.Context, key string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	record.Payload = append([]byte(nil), record.Payload...)
	return record, nil
}

func (m *Memory) Save(_ context.Context, key string, record Record) error {
	record.Payload = append([]byte(nil), record.Payload...)
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	m.records[key] = record
	subs := make([]*memorySub, 0, len(m.subs[key]))
	for sub := range m.subs[key] {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	change := Change{Key: key, Origin: record.Origin, Revision: record.Revision}
	for _, sub := range subs {
		sub.emit(change)
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, key string) (*Subscription, error) {
	registered := make(chan struct{})
	sub := newSubscription(ctx, func(ctx context.Context, emit func(Change)) error {
		entry := &memorySub{emit: emit}
		m.mu.Lock()
		if m.subs[key] == nil {
			m.subs[key] = map[*memorySub]struct{}{}
		}
		m.subs[key][entry] = struct{}{}
		m.mu.Unlock()
		close(registered)

		<-ctx.Done()

		m.mu.Lock()
		delete(m.subs[key], entry)
		m.mu.Unlock()
		return nil
	})
	<-registered
	return sub, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
