// Package bridge keeps a brief.Store and a storage backend in step: local
// changes are written through, and writes from other origins replace the
// in-memory document wholesale.
package bridge

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/crypto/blake2b"

	"syncbrief/api/internal/brief"
	"syncbrief/api/internal/store"
	"syncbrief/api/internal/util"
)

const DefaultKey = "syncbrief_data_v1"

type Bridge struct {
	backend store.Backend
	key     string
	origin  string

	mu       sync.Mutex
	revision string
}

func New(backend store.Backend, key string) *Bridge {
	if key == "" {
		key = DefaultKey
	}
	return &Bridge{
		backend: backend,
		key:     key,
		origin:  util.NewID("origin"),
	}
}

// Revision fingerprints a serialized record.
func Revision(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (b *Bridge) Key() string    { return b.key }
func (b *Bridge) Origin() string { return b.origin }

// CurrentRevision is the revision most recently written or applied here.
func (b *Bridge) CurrentRevision() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revision
}

func (b *Bridge) setRevision(revision string) {
	b.mu.Lock()
	b.revision = revision
	b.mu.Unlock()
}

// Load returns the stored brief, or false if nothing was ever written.
func (b *Bridge) Load(ctx context.Context) (brief.Document, bool, error) {
	record, err := b.backend.Load(ctx, b.key)
	if errors.Is(err, store.ErrNotFound) {
		return brief.Document{}, false, nil
	}
	if err != nil {
		return brief.Document{}, false, err
	}
	doc, err := brief.Decode(record.Payload)
	if err != nil {
		return brief.Document{}, false, fmt.Errorf("load %s: %w", b.key, err)
	}
	b.setRevision(record.Revision)
	return doc, true, nil
}

// LoadOrSeed loads the stored brief, writing the seed brief first when the
// key is empty.
func (b *Bridge) LoadOrSeed(ctx context.Context, now int64) (brief.Document, error) {
	doc, ok, err := b.Load(ctx)
	if err != nil {
		return brief.Document{}, err
	}
	if ok {
		return doc, nil
	}
	doc = brief.Seed(now)
	if _, err := b.Save(ctx, doc); err != nil {
		return brief.Document{}, err
	}
	return doc, nil
}

// Save overwrites the stored record and returns its revision.
func (b *Bridge) Save(ctx context.Context, doc brief.Document) (string, error) {
	payload, err := brief.Encode(doc)
	if err != nil {
		return "", err
	}
	revision := Revision(payload)
	if err := b.backend.Save(ctx, b.key, store.Record{Payload: payload, Origin: b.origin, Revision: revision}); err != nil {
		return "", err
	}
	b.setRevision(revision)
	return revision, nil
}

// OnExternalChange calls fn with each brief another origin writes. The
// subscription is live when OnExternalChange returns; stop ends it.
func (b *Bridge) OnExternalChange(ctx context.Context, fn func(brief.Document)) (stop func(), err error) {
	sub, err := b.backend.Subscribe(ctx, b.key)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", b.key, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case change := <-sub.Changes():
				b.handle(ctx, change, fn)
			case <-sub.Done():
				if err := sub.Err(); err != nil {
					slog.Error("brief change feed stopped", "key", b.key, "err", err)
				}
				return
			}
		}
	}()

	return func() {
		sub.Close()
		<-done
	}, nil
}

func (b *Bridge) handle(ctx context.Context, change store.Change, fn func(brief.Document)) {
	if change.Origin == b.origin || change.Revision == b.CurrentRevision() {
		return
	}
	doc, revision, ok := b.reload(ctx)
	if !ok {
		return
	}
	b.setRevision(revision)
	fn(doc)
}

// reload reads the record after a change notice. ok is false when the
// record is this bridge's own or was already applied.
func (b *Bridge) reload(ctx context.Context) (brief.Document, string, bool) {
	record, err := b.backend.Load(ctx, b.key)
	if err != nil {
		slog.Warn("reload after external change failed", "key", b.key, "err", err)
		return brief.Document{}, "", false
	}
	// A later local write may already have superseded the notice.
	if record.Origin == b.origin || record.Revision == b.CurrentRevision() {
		return brief.Document{}, "", false
	}
	doc, err := brief.Decode(record.Payload)
	if err != nil {
		slog.Warn("ignoring undecodable external brief", "key", b.key, "revision", record.Revision, "err", err)
		return brief.Document{}, "", false
	}
	slog.Debug("applying external brief", "key", b.key, "origin", record.Origin, "revision", record.Revision)
	return doc, record.Revision, true
}

// Attach writes every local change of s through to the backend and
// replaces s with briefs written elsewhere. Saves and external replacements
// run on one goroutine, so memory ends on whichever write landed last in
// storage. Pending local changes are flushed when detach is called.
func (b *Bridge) Attach(ctx context.Context, s *brief.Store) (detach func(), err error) {
	sub, err := b.backend.Subscribe(ctx, b.key)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", b.key, err)
	}

	a := &attachment{
		bridge: b,
		store:  s,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	cancel, version := s.SubscribeAt(a.queue)
	a.synced = version

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.run(ctx, sub)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			close(a.stop)
			<-done
			sub.Close()
		})
	}, nil
}

// attachment ties one Store to the bridge. synced is the store version
// known to match storage; only the run goroutine touches it.
type attachment struct {
	bridge *Bridge
	store  *brief.Store
	synced uint64

	mu      sync.Mutex
	pending *brief.Change
	wake    chan struct{}
	stop    chan struct{}
}

// queue keeps the newest local change for the run loop. It runs inside the
// store's notification and never blocks.
func (a *attachment) queue(change brief.Change) {
	if change.Source != brief.SourceLocal {
		return
	}
	a.mu.Lock()
	a.pending = &change
	a.mu.Unlock()
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *attachment) take() (brief.Change, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return brief.Change{}, false
	}
	change := *a.pending
	a.pending = nil
	return change, true
}

func (a *attachment) run(ctx context.Context, sub *store.Subscription) {
	for {
		select {
		case <-a.wake:
			a.flush(ctx)
		case change := <-sub.Changes():
			a.flush(ctx)
			a.apply(ctx, change)
		case <-sub.Done():
			if err := sub.Err(); err != nil {
				slog.Error("brief change feed stopped", "key", a.bridge.key, "err", err)
			}
			a.waitStop(ctx)
			return
		case <-a.stop:
			a.flush(context.WithoutCancel(ctx))
			return
		}
	}
}

// waitStop keeps saving local changes after the change feed ended.
func (a *attachment) waitStop(ctx context.Context) {
	for {
		select {
		case <-a.wake:
			a.flush(ctx)
		case <-a.stop:
			a.flush(context.WithoutCancel(ctx))
			return
		}
	}
}

// flush saves the newest local change. A failed save still counts as
// synced so later external briefs are not held back by it.
func (a *attachment) flush(ctx context.Context) {
	change, ok := a.take()
	if !ok || change.Version <= a.synced {
		return
	}
	if _, err := a.bridge.Save(ctx, change.Document); err != nil {
		slog.Error("save brief failed", "key", a.bridge.key, "err", err)
	}
	a.synced = change.Version
}

// apply replaces memory with an external brief unless a local change is
// still unsaved. That change is saved after the external one and wins.
func (a *attachment) apply(ctx context.Context, change store.Change) {
	b := a.bridge
	if change.Origin == b.origin || change.Revision == b.CurrentRevision() {
		return
	}
	doc, revision, ok := b.reload(ctx)
	if !ok {
		return
	}
	version, replaced := a.store.ReplaceIf(doc, a.synced)
	if !replaced {
		slog.Debug("external brief superseded by local edit", "key", b.key, "revision", revision)
		return
	}
	b.setRevision(revision)
	a.synced = version
}
