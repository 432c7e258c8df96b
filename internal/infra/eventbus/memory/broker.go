// Package memory provides an in-process broker that fans run snapshots out to local
// subscribers such as the terminal renderer and the Kafka publisher.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ahrav/recon-armada/internal/app/orchestration"
)

type subscriber struct {
	id      uint64
	handler func(orchestration.Snapshot) error
}

// Broker delivers each published snapshot to every live subscriber, in subscription
// order. Handlers run on the publisher's goroutine.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber
}

// NewBroker creates an empty broker.
func NewBroker() *Broker { return new(Broker) }

// SubscribeSnapshots registers handler until ctx ends.
func (b *Broker) SubscribeSnapshots(ctx context.Context, handler func(orchestration.Snapshot) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, handler: handler})
	b.mu.Unlock()

	context.AfterFunc(ctx, func() { b.unsubscribe(id) })
	return nil
}

func (b *Broker) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// PublishSnapshot delivers snap to every subscriber, stopping at the first error.
// The subscriber list is copied so handlers may subscribe without deadlocking.
func (b *Broker) PublishSnapshot(ctx context.Context, snap orchestration.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.handler(snap); err != nil {
			return err
		}
	}
	return nil
}

// Subscribers reports how many handlers are registered.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
