package judgments

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aiengineer/rageval/internal/pkg/errors"
)

// DefaultKeyPrefix namespaces judgment keys in Redis.
const DefaultKeyPrefix = "rageval:judgments:"

// RedisStore keeps one Redis SET of doc IDs per query.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "parsing redis URL", err)
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.StorageError("connecting to redis", err)
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *RedisStore) key(queryID string) string {
	return s.prefix + queryID
}

// Add records judgments in a single pipeline.
func (s *RedisStore) Add(ctx context.Context, judgments []Judgment) error {
	if err := validate(judgments); err != nil {
		return err
	}
	if len(judgments) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for queryID, docs := range Group(judgments) {
		members := make([]any, len(docs))
		for i, d := range docs {
			members[i] = d
		}
		pipe.SAdd(ctx, s.key(queryID), members...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.StorageError("saving judgments", err)
	}
	return nil
}

// GroundTruth returns the relevant doc IDs for a query.
func (s *RedisStore) GroundTruth(ctx context.Context, queryID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.key(queryID)).Result()
	if err != nil {
		return nil, errors.StorageError("loading ground truth", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Queries scans for judged query IDs.
func (s *RedisStore) Queries(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(s.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, errors.StorageError("listing queries", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a query's judgments.
func (s *RedisStore) Delete(ctx context.Context, queryID string) error {
	n, err := s.client.Del(ctx, s.key(queryID)).Result()
	if err != nil {
		return errors.StorageError("deleting judgments", err)
	}
	if n == 0 {
		return errors.NotFoundError(fmt.Sprintf("query %s", queryID))
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
