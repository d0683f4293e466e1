package brain

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"basegraph.app/concierge/internal/knowledge"
	"basegraph.app/concierge/internal/model"
)

const (
	DefaultRetrievalTopK    = 5
	DefaultRetrievalTimeout = 3 * time.Second
)

// Retriever finds knowledge snippets relevant to a user message.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]model.KnowledgeSnippet, error)
}

type RetrieverConfig struct {
	DefaultTopK   int
	Timeout       time.Duration
	MaxConcurrent int64
}

// KnowledgeRetriever wraps a knowledge.Index with a per-call timeout, a
// concurrency cap and result normalisation.
type KnowledgeRetriever struct {
	index   knowledge.Index
	limiter *Limiter
	timeout time.Duration
	topK    int
}

func NewKnowledgeRetriever(index knowledge.Index, cfg RetrieverConfig) *KnowledgeRetriever {
	topK := cfg.DefaultTopK
	if topK <= 0 {
		topK = DefaultRetrievalTopK
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRetrievalTimeout
	}
	return &KnowledgeRetriever{
		index:   index,
		limiter: NewLimiter(cfg.MaxConcurrent),
		timeout: timeout,
		topK:    topK,
	}
}

// Search returns at most topK snippets, best first. No match is an empty
// slice, not an error; index failures and timeouts are retrieval errors.
func (r *KnowledgeRetriever) Search(ctx context.Context, query string, topK int) ([]model.KnowledgeSnippet, error) {
	if topK <= 0 {
		topK = r.topK
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.KnowledgeSnippet{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	var snippets []model.KnowledgeSnippet
	err := r.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		snippets, err = r.index.Search(ctx, query, topK)
		return err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.WarnContext(ctx, "knowledge search timed out",
				"index", r.index.Name(),
				"timeout_ms", r.timeout.Milliseconds())
		}
		return nil, model.NewRetrievalError("knowledge_search", err)
	}

	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].Score > snippets[j].Score
	})
	if len(snippets) > topK {
		snippets = snippets[:topK]
	}
	if snippets == nil {
		snippets = []model.KnowledgeSnippet{}
	}

	slog.DebugContext(ctx, "knowledge search completed",
		"index", r.index.Name(),
		"hits", len(snippets),
		"duration_ms", time.Since(start).Milliseconds())

	return snippets, nil
}
