package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore keeps documents and logs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]json.RawMessage
	logs map[string][]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]json.RawMessage),
		logs: make(map[string][]json.RawMessage),
	}
}

func (s *MemoryStore) Read(_ context.Context, name string) (json.RawMessage, bool, error) {
	if err := checkName(name); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[name]
	if !ok {
		return nil, false, nil
	}
	return clone(doc), true, nil
}

func (s *MemoryStore) Write(_ context.Context, name string, doc json.RawMessage) error {
	if err := checkName(name); err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[name] = clone(doc)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Append(_ context.Context, name string, record json.RawMessage) error {
	if err := checkName(name); err != nil {
		return err
	}
	s.mu.Lock()
	s.logs[name] = append(s.logs[name], clone(record))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Log(_ context.Context, name string) ([]json.RawMessage, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.logs[name]
	out := make([]json.RawMessage, len(src))
	for i, rec := range src {
		out[i] = clone(rec)
	}
	return out, nil
}

func (s *MemoryStore) Trim(_ context.Context, name string, keep int) error {
	if err := checkName(name); err != nil {
		return err
	}
	if keep < 0 {
		keep = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.logs[name]
	if len(recs) <= keep {
		return nil
	}
	// Copy so the dropped prefix can be collected.
	s.logs[name] = append([]json.RawMessage(nil), recs[len(recs)-keep:]...)
	return nil
}

func clone(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}
