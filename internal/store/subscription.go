package store

import (
	"context"
	"sync"
)

// Subscription delivers changes for one key. Delivery keeps only the most
// recent undelivered change, which is all a last-write-wins reader needs.
type Subscription struct {
	changes chan Change
	cancel  context.CancelFunc
	done    chan struct{}

	sendMu sync.Mutex
	errMu  sync.Mutex
	err    error
}

// newSubscription runs feed in its own goroutine until ctx ends or Close is
// called. feed reports changes through emit.
func newSubscription(ctx context.Context, feed func(ctx context.Context, emit func(Change)) error) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		changes: make(chan Change, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(sub.done)
		if err := feed(ctx, sub.emit); err != nil && ctx.Err() == nil {
			sub.errMu.Lock()
			sub.err = err
			sub.errMu.Unlock()
		}
		sub.cancel()
	}()
	return sub
}

func (s *Subscription) emit(change Change) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	select {
	case s.changes <- change:
		return
	default:
	}
	select {
	case <-s.changes:
	default:
	}
	s.changes <- change
}

func (s *Subscription) Changes() <-chan Change {
	return s.changes
}

// Done is closed once the feed has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the feed stopped, or nil if it was cancelled.
func (s *Subscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}
