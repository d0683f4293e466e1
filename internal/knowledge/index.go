package knowledge

import (
	"context"

	"basegraph.app/concierge/internal/model"
)

// Index answers keyword queries against the knowledge base. Implementations
// return snippets with scores in [0,1]; ordering and truncation are left to
// the retriever.
type Index interface {
	Search(ctx context.Context, query string, topK int) ([]model.KnowledgeSnippet, error)
	Name() string
}

// Writer is implemented by indexes that accept ingested documents.
type Writer interface {
	Upsert(ctx context.Context, docs []model.KnowledgeDocument) error
	Delete(ctx context.Context, id string) error
}

// WritableIndex is an index that ingestion can feed.
type WritableIndex interface {
	Index
	Writer
}
