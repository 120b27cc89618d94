package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// Kind names one logical collection in the record store.
type Kind string

const (
	KindStudents     Kind = "students"
	KindProofs       Kind = "proofs"
	KindCertificates Kind = "certificates"
	KindTemplates    Kind = "templates"
)

// ErrNotFound keeps store-specific 404s consistent across backends.
var ErrNotFound = errors.New("record not found")

// Document is one stored record: a numeric id plus an opaque JSON body.
// Typed repositories in internal/records marshal domain structs in and out.
type Document struct {
	ID  int64
	Doc json.RawMessage
}

// Store is the key-value-like record store the pipeline runs on. Backends are
// interchangeable at runtime; business code must not special-case any of them.
//
// Write operations serialize per kind so id allocation from "current max + 1"
// never races. Insert allocates max+1 (1 for an empty collection); NextSeq is
// a persistent monotonic counter that survives deletes, used where ids must
// never be reused (certificate numbers) or where append order must stay
// well-defined (the proof log).
type Store interface {
	ListAll(ctx context.Context, kind Kind) ([]Document, error)
	Get(ctx context.Context, kind Kind, id int64) (Document, error)
	Insert(ctx context.Context, kind Kind, doc json.RawMessage) (int64, error)
	Put(ctx context.Context, kind Kind, id int64, doc json.RawMessage) error
	Update(ctx context.Context, kind Kind, id int64, doc json.RawMessage) error
	DeleteWhere(ctx context.Context, kind Kind, match func(Document) bool) (int, error)
	NextSeq(ctx context.Context, name string) (int64, error)
}
