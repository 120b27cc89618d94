package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Memory keeps every collection in process memory. It is the development and
// test backend; intentionally favors clarity over performance.
type Memory struct {
	mu   sync.RWMutex
	data map[Kind]map[int64]json.RawMessage
	seqs map[string]int64
}

func NewMemory() *Memory {
	return &Memory{
		data: make(map[Kind]map[int64]json.RawMessage),
		seqs: make(map[string]int64),
	}
}

func (s *Memory) ListAll(_ context.Context, kind Kind) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]Document, 0, len(s.data[kind]))
	for id, doc := range s.data[kind] {
		docs = append(docs, Document{ID: id, Doc: doc})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *Memory) Get(_ context.Context, kind Kind, id int64) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if doc, ok := s.data[kind][id]; ok {
		return Document{ID: id, Doc: doc}, nil
	}
	return Document{}, ErrNotFound
}

func (s *Memory) Insert(_ context.Context, kind Kind, doc json.RawMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[kind] == nil {
		s.data[kind] = make(map[int64]json.RawMessage)
	}
	var max int64
	for id := range s.data[kind] {
		if id > max {
			max = id
		}
	}
	id := max + 1
	s.data[kind][id] = doc
	return id, nil
}

func (s *Memory) Put(_ context.Context, kind Kind, id int64, doc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[kind] == nil {
		s.data[kind] = make(map[int64]json.RawMessage)
	}
	s.data[kind][id] = doc
	return nil
}

func (s *Memory) Update(_ context.Context, kind Kind, id int64, doc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[kind][id]; !ok {
		return ErrNotFound
	}
	s.data[kind][id] = doc
	return nil
}

func (s *Memory) DeleteWhere(_ context.Context, kind Kind, match func(Document) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, doc := range s.data[kind] {
		if match(Document{ID: id, Doc: doc}) {
			delete(s.data[kind], id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Memory) NextSeq(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[name]++
	return s.seqs[name], nil
}
