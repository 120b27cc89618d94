package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// File persists each collection as one JSON file under dir, mirroring the
// flat-file layout the deployment's operators can inspect by hand. Sequences
// live in a separate meta file so counters survive bulk deletes.
type File struct {
	mu  sync.Mutex
	dir string
}

func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &File{dir: dir}, nil
}

type fileEntry struct {
	ID  int64           `json:"id"`
	Doc json.RawMessage `json:"doc"`
}

func (s *File) kindPath(kind Kind) string {
	return filepath.Join(s.dir, string(kind)+".json")
}

func (s *File) seqPath() string {
	return filepath.Join(s.dir, "sequences.json")
}

func (s *File) load(kind Kind) ([]fileEntry, error) {
	data, err := os.ReadFile(s.kindPath(kind))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s store: %w", kind, err)
	}
	var entries []fileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s store: %w", kind, err)
	}
	return entries, nil
}

// save writes through a temp file and rename so a crash mid-write cannot
// truncate the collection.
func (s *File) save(kind Kind, entries []fileEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.kindPath(kind), data)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *File) ListAll(_ context.Context, kind Kind) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(kind)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, Document{ID: e.ID, Doc: e.Doc})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *File) Get(_ context.Context, kind Kind, id int64) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(kind)
	if err != nil {
		return Document{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return Document{ID: e.ID, Doc: e.Doc}, nil
		}
	}
	return Document{}, ErrNotFound
}

func (s *File) Insert(_ context.Context, kind Kind, doc json.RawMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(kind)
	if err != nil {
		return 0, err
	}
	var max int64
	for _, e := range entries {
		if e.ID > max {
			max = e.ID
		}
	}
	id := max + 1
	entries = append(entries, fileEntry{ID: id, Doc: doc})
	if err := s.save(kind, entries); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *File) Put(_ context.Context, kind Kind, id int64, doc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(kind)
	if err != nil {
		return err
	}
	replaced := false
	for i := range entries {
		if entries[i].ID == id {
			entries[i].Doc = doc
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, fileEntry{ID: id, Doc: doc})
	}
	return s.save(kind, entries)
}

func (s *File) Update(_ context.Context, kind Kind, id int64, doc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(kind)
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID == id {
			entries[i].Doc = doc
			return s.save(kind, entries)
		}
	}
	return ErrNotFound
}

func (s *File) DeleteWhere(_ context.Context, kind Kind, match func(Document) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(kind)
	if err != nil {
		return 0, err
	}
	kept := entries[:0]
	deleted := 0
	for _, e := range entries {
		if match(Document{ID: e.ID, Doc: e.Doc}) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	if deleted == 0 {
		return 0, nil
	}
	if err := s.save(kind, kept); err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *File) NextSeq(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seqs := make(map[string]int64)
	if data, err := os.ReadFile(s.seqPath()); err == nil {
		if err := json.Unmarshal(data, &seqs); err != nil {
			return 0, fmt.Errorf("parse sequences: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return 0, err
	}
	seqs[name]++
	data, err := json.MarshalIndent(seqs, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := writeAtomic(s.seqPath(), data); err != nil {
		return 0, err
	}
	return seqs[name], nil
}
