package runtime

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/callboard/pkg/domain"
)

type subscription struct {
	id    uint64
	hooks domain.LifecycleHooks
}

// eventBus delivers events synchronously, in subscription order.
type eventBus struct {
	mu   sync.RWMutex
	next uint64
	subs []subscription
}

func newEventBus() *eventBus {
	return &eventBus{}
}

func (b *eventBus) subscribe(hooks domain.LifecycleHooks) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, hooks: hooks})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
	}
}

func (b *eventBus) publish(ctx context.Context, events []any) {
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	for _, ev := range events {
		for _, s := range subs {
			switch e := ev.(type) {
			case *domain.LineStateChangeEvent:
				if s.hooks.OnStateChange != nil {
					s.hooks.OnStateChange(ctx, e)
				}
			case *domain.LineIncomingCallEvent:
				if s.hooks.OnIncomingCall != nil {
					s.hooks.OnIncomingCall(ctx, e)
				}
			case *domain.LineCallEndedEvent:
				if s.hooks.OnCallEnded != nil {
					s.hooks.OnCallEnded(ctx, e)
				}
			case *domain.LineSelectionChangeEvent:
				if s.hooks.OnSelectionChange != nil {
					s.hooks.OnSelectionChange(ctx, e)
				}
			}
		}
	}
}
