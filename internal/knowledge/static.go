package knowledge

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"basegraph.app/concierge/internal/model"
)

//go:embed faq.json
var defaultFAQ []byte

// staticIndex scores documents by the share of query terms they contain, a
// term in the title or tags counting twice as much as one only in the body.
// It backs local runs and tests, and accepts ingested documents in memory.
type staticIndex struct {
	mu   sync.RWMutex
	docs map[string]indexedDocument
}

type indexedDocument struct {
	doc     model.KnowledgeDocument
	heading map[string]struct{} // title and tags
	body    map[string]struct{}
}

const (
	headingWeight = 2
	bodyWeight    = 1
)

// score is in [0, 1]; 1 means every query term is in the title or tags.
func (d indexedDocument) score(queryTerms map[string]struct{}) float64 {
	hits := 0
	for t := range queryTerms {
		if _, ok := d.heading[t]; ok {
			hits += headingWeight
		} else if _, ok := d.body[t]; ok {
			hits += bodyWeight
		}
	}
	return float64(hits) / float64(headingWeight*len(queryTerms))
}

// NewStaticIndex loads the built-in FAQ.
func NewStaticIndex() (WritableIndex, error) {
	var docs []model.KnowledgeDocument
	if err := json.Unmarshal(defaultFAQ, &docs); err != nil {
		return nil, fmt.Errorf("decoding built-in faq: %w", err)
	}
	return NewStaticIndexFromDocuments(docs), nil
}

func NewStaticIndexFromDocuments(docs []model.KnowledgeDocument) WritableIndex {
	idx := &staticIndex{docs: make(map[string]indexedDocument, len(docs))}
	for _, d := range docs {
		idx.put(d)
	}
	return idx
}

func (i *staticIndex) Name() string { return "static" }

func (i *staticIndex) Search(ctx context.Context, query string, topK int) ([]model.KnowledgeSnippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryTerms := terms(query)
	if len(queryTerms) == 0 {
		return []model.KnowledgeSnippet{}, nil
	}

	i.mu.RLock()
	var snippets []model.KnowledgeSnippet
	for _, d := range i.docs {
		score := d.score(queryTerms)
		if score == 0 {
			continue
		}
		snippets = append(snippets, model.KnowledgeSnippet{
			ID:      d.doc.ID,
			Content: d.doc.Content,
			Score:   score,
			Metadata: model.SnippetMetadata{
				Type:  d.doc.Type,
				Title: d.doc.Title,
				Tags:  d.doc.Tags,
			},
		})
	}
	i.mu.RUnlock()

	sort.Slice(snippets, func(a, b int) bool {
		if snippets[a].Score != snippets[b].Score {
			return snippets[a].Score > snippets[b].Score
		}
		return snippets[a].ID < snippets[b].ID
	})
	if topK > 0 && len(snippets) > topK {
		snippets = snippets[:topK]
	}
	if snippets == nil {
		snippets = []model.KnowledgeSnippet{}
	}
	return snippets, nil
}

func (i *staticIndex) Upsert(_ context.Context, docs []model.KnowledgeDocument) error {
	for _, d := range docs {
		i.put(d)
	}
	return nil
}

func (i *staticIndex) Delete(_ context.Context, id string) error {
	i.mu.Lock()
	delete(i.docs, id)
	i.mu.Unlock()
	return nil
}

func (i *staticIndex) put(d model.KnowledgeDocument) {
	entry := indexedDocument{
		doc:     d,
		heading: terms(d.Title + " " + strings.Join(d.Tags, " ")),
		body:    terms(d.Content),
	}
	i.mu.Lock()
	i.docs[d.ID] = entry
	i.mu.Unlock()
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"can": {}, "do": {}, "does": {}, "for": {}, "from": {}, "how": {}, "i": {}, "in": {},
	"is": {}, "it": {}, "my": {}, "of": {}, "on": {}, "or": {}, "our": {}, "the": {},
	"to": {}, "we": {}, "what": {}, "when": {}, "where": {}, "with": {}, "you": {}, "your": {},
}

// terms lowercases text, splits on anything that is not a letter or digit and
// drops stopwords plus a trailing plural "s".
func terms(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, stop := stopwords[f]; stop {
			continue
		}
		if len(f) > 3 && strings.HasSuffix(f, "s") && !strings.HasSuffix(f, "ss") {
			f = strings.TrimSuffix(f, "s")
		}
		out[f] = struct{}{}
	}
	return out
}
