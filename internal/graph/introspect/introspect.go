// Package introspect reads the schema that already exists live in the graph
// store.
package introspect

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/nodegraph/provisioner/internal/graph"
	"github.com/nodegraph/provisioner/internal/graph/schema"
)

const (
	typeQuery      = `schema(type: %s) { type }`
	predicateQuery = `schema(pred: [%s]) { type list index tokenizer upsert }`
)

// Introspector reads live type and predicate metadata
type Introspector struct {
	client graph.Client
	retry  *RetryConfig
	logger *zap.Logger
}

// Option configures an Introspector
type Option func(*Introspector)

// WithRetryConfig overrides the retry policy for transient read failures
func WithRetryConfig(cfg *RetryConfig) Option {
	return func(i *Introspector) {
		if cfg != nil {
			i.retry = cfg
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(i *Introspector) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New creates an introspector over the given client
func New(client graph.Client, opts ...Option) *Introspector {
	i := &Introspector{
		client: client,
		retry:  DefaultRetryConfig(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type typeResponse struct {
	Types []struct {
		Name   string `json:"name"`
		Fields []struct {
			Name string `json:"name"`
		} `json:"fields"`
	} `json:"types"`
}

type predicateResponse struct {
	Schema []struct {
		Predicate string   `json:"predicate"`
		Type      string   `json:"type"`
		List      bool     `json:"list"`
		Index     bool     `json:"index"`
		Tokenizer []string `json:"tokenizer"`
		Upsert    bool     `json:"upsert"`
	} `json:"schema"`
}

// QueryType returns the predicate names of a live type in store order. A type
// that does not exist yet yields an empty slice.
func (i *Introspector) QueryType(ctx context.Context, name string) ([]string, error) {
	var names []string

	err := i.withRetry(ctx, "type", name, func(ctx context.Context) error {
		data, err := i.read(ctx, fmt.Sprintf(typeQuery, name))
		if err != nil {
			return err
		}

		var resp typeResponse
		if len(data) > 0 {
			if err := json.Unmarshal(data, &resp); err != nil {
				return permanent(fmt.Errorf("failed to decode type response: %w", err))
			}
		}

		names = []string{}
		if len(resp.Types) == 0 {
			return nil
		}
		for _, field := range resp.Types[0].Fields {
			names = append(names, field.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return names, nil
}

// QueryPredicate returns the live metadata of one predicate
func (i *Introspector) QueryPredicate(ctx context.Context, name string) (schema.PredicateMeta, error) {
	var meta schema.PredicateMeta

	err := i.withRetry(ctx, "predicate", name, func(ctx context.Context) error {
		data, err := i.read(ctx, fmt.Sprintf(predicateQuery, name))
		if err != nil {
			return err
		}

		var resp predicateResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return permanent(fmt.Errorf("failed to decode predicate response: %w", err))
		}
		if len(resp.Schema) == 0 {
			return permanent(ErrPredicateNotFound)
		}

		entry := resp.Schema[0]
		meta = schema.PredicateMeta{
			Predicate: entry.Predicate,
			Type:      entry.Type,
			List:      entry.List,
			Index:     entry.Tokenizer,
			Upsert:    entry.Upsert,
		}
		if meta.Predicate == "" {
			meta.Predicate = name
		}
		return nil
	})
	if err != nil {
		return schema.PredicateMeta{}, err
	}

	return meta, nil
}

// FetchType returns the metadata of every live predicate of a type, in the
// order the store lists them
func (i *Introspector) FetchType(ctx context.Context, name string) ([]schema.PredicateMeta, error) {
	names, err := i.QueryType(ctx, name)
	if err != nil {
		return nil, err
	}

	metas := make([]schema.PredicateMeta, 0, len(names))
	for _, predName := range names {
		meta, err := i.QueryPredicate(ctx, predName)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", name, err)
		}
		metas = append(metas, meta)
	}

	i.logger.Debug("introspected live type",
		zap.String("type", name),
		zap.Int("predicates", len(metas)),
	)

	return metas, nil
}

// read runs one query in its own read-only transaction, discarding the
// transaction on every exit path
func (i *Introspector) read(ctx context.Context, query string) ([]byte, error) {
	txn := i.client.NewReadOnlyTxn()
	defer func() {
		if err := txn.Discard(context.WithoutCancel(ctx)); err != nil {
			i.logger.Warn("failed to discard read transaction", zap.Error(err))
		}
	}()

	return txn.Query(ctx, query)
}
