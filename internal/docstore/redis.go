package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	platformredis "certproof/internal/platform/redis"
)

const redisKeyPrefix = "certproof:"

// Redis keeps each collection in one hash (field = id, value = doc) and
// sequences as plain INCR counters. Id allocation takes an in-process lock per
// store, matching the single-writer-per-collection discipline the pipeline
// assumes.
type Redis struct {
	mu     sync.Mutex
	client *redis.Client
}

func NewRedis(url string) (*Redis, error) {
	client, err := platformredis.New(url)
	if err != nil {
		return nil, err
	}
	return &Redis{client: client}, nil
}

// NewRedisFromClient wraps an existing client; used by integration tests.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Close() error {
	return s.client.Close()
}

func kindKey(kind Kind) string {
	return redisKeyPrefix + string(kind)
}

func seqKey(name string) string {
	return redisKeyPrefix + "seq:" + name
}

func (s *Redis) ListAll(ctx context.Context, kind Kind) ([]Document, error) {
	fields, err := s.client.HGetAll(ctx, kindKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	docs := make([]Document, 0, len(fields))
	for field, doc := range fields {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt %s id %q: %w", kind, field, err)
		}
		docs = append(docs, Document{ID: id, Doc: json.RawMessage(doc)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *Redis) Get(ctx context.Context, kind Kind, id int64) (Document, error) {
	doc, err := s.client.HGet(ctx, kindKey(kind), strconv.FormatInt(id, 10)).Result()
	if err == redis.Nil {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s/%d: %w", kind, id, err)
	}
	return Document{ID: id, Doc: json.RawMessage(doc)}, nil
}

func (s *Redis) Insert(ctx context.Context, kind Kind, doc json.RawMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, err := s.client.HKeys(ctx, kindKey(kind)).Result()
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", kind, err)
	}
	var max int64
	for _, field := range fields {
		if id, err := strconv.ParseInt(field, 10, 64); err == nil && id > max {
			max = id
		}
	}
	id := max + 1
	if err := s.client.HSet(ctx, kindKey(kind), strconv.FormatInt(id, 10), string(doc)).Err(); err != nil {
		return 0, fmt.Errorf("insert %s: %w", kind, err)
	}
	return id, nil
}

func (s *Redis) Put(ctx context.Context, kind Kind, id int64, doc json.RawMessage) error {
	err := s.client.HSet(ctx, kindKey(kind), strconv.FormatInt(id, 10), string(doc)).Err()
	if err != nil {
		return fmt.Errorf("put %s/%d: %w", kind, id, err)
	}
	return nil
}

func (s *Redis) Update(ctx context.Context, kind Kind, id int64, doc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.client.HExists(ctx, kindKey(kind), strconv.FormatInt(id, 10)).Result()
	if err != nil {
		return fmt.Errorf("update %s/%d: %w", kind, id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return s.Put(ctx, kind, id, doc)
}

func (s *Redis) DeleteWhere(ctx context.Context, kind Kind, match func(Document) bool) (int, error) {
	docs, err := s.ListAll(ctx, kind)
	if err != nil {
		return 0, err
	}
	var fields []string
	for _, d := range docs {
		if match(d) {
			fields = append(fields, strconv.FormatInt(d.ID, 10))
		}
	}
	if len(fields) == 0 {
		return 0, nil
	}
	deleted, err := s.client.HDel(ctx, kindKey(kind), fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", kind, err)
	}
	return int(deleted), nil
}

func (s *Redis) NextSeq(ctx context.Context, name string) (int64, error) {
	value, err := s.client.Incr(ctx, seqKey(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("next seq %s: %w", name, err)
	}
	return value, nil
}
