package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Postgres stores every collection in a single (kind, id, doc) table so new
// kinds need no migrations. Inserts allocate max+1 inside a retry loop on
// primary-key conflicts, which serializes allocation without table locks.
type Postgres struct {
	db *sql.DB
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS records (
	kind TEXT   NOT NULL,
	id   BIGINT NOT NULL,
	doc  JSONB  NOT NULL,
	PRIMARY KEY (kind, id)
);
CREATE TABLE IF NOT EXISTS record_seqs (
	name  TEXT PRIMARY KEY,
	value BIGINT NOT NULL
);
`

// NewPostgres opens the database and applies the schema.
func NewPostgres(url string) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := &Postgres{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresFromDB wraps an existing connection; used by integration tests.
func NewPostgresFromDB(db *sql.DB) (*Postgres, error) {
	store := &Postgres{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Postgres) migrate() error {
	if _, err := s.db.Exec(postgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

func (s *Postgres) ListAll(ctx context.Context, kind Kind) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc FROM records WHERE kind = $1 ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, (*[]byte)(&d.Doc)); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *Postgres) Get(ctx context.Context, kind Kind, id int64) (Document, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM records WHERE kind = $1 AND id = $2`, string(kind), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s/%d: %w", kind, id, err)
	}
	return Document{ID: id, Doc: doc}, nil
}

func (s *Postgres) Insert(ctx context.Context, kind Kind, doc json.RawMessage) (int64, error) {
	const attempts = 5
	for i := 0; i < attempts; i++ {
		var id int64
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO records (kind, id, doc)
			SELECT $1, COALESCE(MAX(id), 0) + 1, $2 FROM records WHERE kind = $1
			RETURNING id
		`, string(kind), []byte(doc)).Scan(&id)
		if err == nil {
			return id, nil
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			continue // concurrent allocator won the id, recompute
		}
		return 0, fmt.Errorf("insert %s: %w", kind, err)
	}
	return 0, fmt.Errorf("insert %s: id allocation kept conflicting", kind)
}

func (s *Postgres) Put(ctx context.Context, kind Kind, id int64, doc json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (kind, id, doc) VALUES ($1, $2, $3)
		ON CONFLICT (kind, id) DO UPDATE SET doc = EXCLUDED.doc
	`, string(kind), id, []byte(doc))
	if err != nil {
		return fmt.Errorf("put %s/%d: %w", kind, id, err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, kind Kind, id int64, doc json.RawMessage) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET doc = $3 WHERE kind = $1 AND id = $2`,
		string(kind), id, []byte(doc))
	if err != nil {
		return fmt.Errorf("update %s/%d: %w", kind, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWhere evaluates the predicate client-side, then deletes the matching
// ids in one statement. Predicates stay plain Go functions so callers never
// write backend-specific queries.
func (s *Postgres) DeleteWhere(ctx context.Context, kind Kind, match func(Document) bool) (int, error) {
	docs, err := s.ListAll(ctx, kind)
	if err != nil {
		return 0, err
	}
	var ids []int64
	for _, d := range docs {
		if match(d) {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE kind = $1 AND id = ANY($2)`,
		string(kind), pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", kind, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Postgres) NextSeq(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO record_seqs (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = record_seqs.value + 1
		RETURNING value
	`, name).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next seq %s: %w", name, err)
	}
	return value, nil
}
