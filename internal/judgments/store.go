// Package judgments stores ground-truth relevance judgments: which document
// IDs are relevant for which query. Judgments are evaluation input; computed
// metrics are never written here.
package judgments

import (
	"context"
	"fmt"

	"github.com/aiengineer/rageval/internal/pkg/errors"
	"github.com/aiengineer/rageval/internal/pkg/security"
)

// Judgment marks DocID as relevant for QueryID.
type Judgment struct {
	QueryID string `json:"query_id" yaml:"query_id"`
	DocID   string `json:"doc_id" yaml:"doc_id"`
}

// Store persists judgments.
type Store interface {
	// Add records judgments. Re-adding an existing pair is a no-op.
	Add(ctx context.Context, judgments []Judgment) error

	// GroundTruth returns the relevant doc IDs for a query, sorted.
	// An unknown query yields an empty slice and no error.
	GroundTruth(ctx context.Context, queryID string) ([]string, error)

	// Queries returns every query ID with at least one judgment, sorted.
	Queries(ctx context.Context) ([]string, error)

	// Delete removes all judgments for a query. Unknown queries are NOT_FOUND.
	Delete(ctx context.Context, queryID string) error

	// Close releases backend resources.
	Close() error
}

// Backend types.
const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
	TypeSQLite = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Type       string
	RedisURL   string
	KeyPrefix  string
	SQLitePath string
}

// New creates the backend named by cfg.Type.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", TypeMemory:
		return NewMemoryStore(), nil
	case TypeRedis:
		return NewRedisStore(ctx, cfg.RedisURL, cfg.KeyPrefix)
	case TypeSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown judgments store type: %s", cfg.Type))
	}
}

// Group collects judgments by query ID.
func Group(judgments []Judgment) map[string][]string {
	out := make(map[string][]string)
	for _, j := range judgments {
		out[j.QueryID] = append(out[j.QueryID], j.DocID)
	}
	return out
}

func validate(judgments []Judgment) error {
	for i, j := range judgments {
		if err := security.ValidateID("query_id", j.QueryID); err != nil {
			return errors.ValidationError(err.Error()).WithDetail("index", fmt.Sprintf("%d", i))
		}
		if err := security.ValidateID("doc_id", j.DocID); err != nil {
			return errors.ValidationError(err.Error()).WithDetail("index", fmt.Sprintf("%d", i))
		}
	}
	return nil
}
