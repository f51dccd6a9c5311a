package docstore

import (
	"context"
	"sync"
)

// changeHandler reacts to a change.
type changeHandler func(Change)

// eventBus provides in-process pub/sub of document changes keyed by collection.
type eventBus struct {
	subscribers map[string]map[uint64]changeHandler
	nextID      uint64
	mu          sync.RWMutex
}

func newEventBus() *eventBus {
	return &eventBus{subscribers: make(map[string]map[uint64]changeHandler)}
}

// subscribe registers fn for collection. The returned function removes it
// and is safe to call more than once. The subscription also ends with ctx.
func (b *eventBus) subscribe(ctx context.Context, collection string, fn changeHandler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subscribers[collection] == nil {
		b.subscribers[collection] = make(map[uint64]changeHandler)
	}
	b.subscribers[collection][id] = fn
	b.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			delete(b.subscribers[collection], id)
			if len(b.subscribers[collection]) == 0 {
				delete(b.subscribers, collection)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return cancel
}

// publish notifies subscribers of the change's collection.
func (b *eventBus) publish(change Change) {
	b.mu.RLock()
	handlers := make([]changeHandler, 0, len(b.subscribers[change.Collection]))
	for _, h := range b.subscribers[change.Collection] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		// Handlers run synchronously; subscribers decide their own concurrency.
		handler(change)
	}
}

func (b *eventBus) closeAll() {
	b.mu.Lock()
	b.subscribers = make(map[string]map[uint64]changeHandler)
	b.mu.Unlock()
}
