package docstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process memory. It backs tests and the
// "memory" driver for local runs.
type MemoryStore struct {
	mu     sync.Mutex
	docs   map[string]map[string]Data
	bus    *eventBus
	closed bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]Data),
		bus:  newEventBus(),
	}
}

func (m *MemoryStore) Get(_ context.Context, collection, key string) (Document, error) {
	if err := validPath(collection, key); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Document{}, ErrStoreClosed
	}
	data, ok := m.docs[collection][key]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{Key: key, Data: clone(data)}, nil
}

func (m *MemoryStore) Set(_ context.Context, collection, key string, data Data) error {
	if err := validPath(collection, key); err != nil {
		return err
	}
	change, err := m.write(collection, key, clone(data))
	if err != nil {
		return err
	}
	m.bus.publish(change)
	return nil
}

func (m *MemoryStore) UpdateFields(ctx context.Context, collection, key string, fields Data) error {
	return m.Mutate(ctx, collection, key, func(cur Data, _ bool) (Data, bool, error) {
		return merge(cur, fields), false, nil
	})
}

func (m *MemoryStore) Delete(_ context.Context, collection, key string) error {
	if err := validPath(collection, key); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrStoreClosed
	}
	_, existed := m.docs[collection][key]
	delete(m.docs[collection], key)
	m.mu.Unlock()

	if existed {
		m.bus.publish(Change{Collection: collection, Kind: ChangeRemoved, Doc: Document{Key: key}})
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, collection string) ([]Document, error) {
	if collection == "" {
		return nil, ErrInvalidPath
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	docs := make([]Document, 0, len(m.docs[collection]))
	for key, data := range m.docs[collection] {
		docs = append(docs, Document{Key: key, Data: clone(data)})
	}
	sortDocuments(docs)
	return docs, nil
}

func (m *MemoryStore) Add(ctx context.Context, collection string, data Data) (string, error) {
	key := uuid.NewString()
	if err := m.Set(ctx, collection, key, data); err != nil {
		return "", err
	}
	return key, nil
}

func (m *MemoryStore) Mutate(_ context.Context, collection, key string, fn MutateFunc) error {
	if err := validPath(collection, key); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrStoreClosed
	}
	current, exists := m.docs[collection][key]
	next, remove, err := fn(clone(current), exists)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	var change Change
	switch {
	case remove:
		delete(m.docs[collection], key)
		change = Change{Collection: collection, Kind: ChangeRemoved, Doc: Document{Key: key}}
	case next == nil:
		m.mu.Unlock()
		return errNilMutateRes
	default:
		change = m.putLocked(collection, key, clone(next))
	}
	m.mu.Unlock()

	if !remove || exists {
		m.bus.publish(change)
	}
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, collection string, fn func(Change)) (func(), error) {
	if collection == "" {
		return nil, ErrInvalidPath
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	return m.bus.subscribe(ctx, collection, fn), nil
}

func (m *MemoryStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.bus.closeAll()
	return nil
}

func (m *MemoryStore) write(collection, key string, data Data) (Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Change{}, ErrStoreClosed
	}
	return m.putLocked(collection, key, data), nil
}

func (m *MemoryStore) putLocked(collection, key string, data Data) Change {
	if data == nil {
		data = Data{}
	}
	kind := ChangeModified
	if _, ok := m.docs[collection][key]; !ok {
		kind = ChangeAdded
	}
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]Data)
	}
	m.docs[collection][key] = data
	return Change{Collection: collection, Kind: kind, Doc: Document{Key: key, Data: clone(data)}}
}
