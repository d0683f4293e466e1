package knowledge

import (
	"context"

	"basegraph.app/concierge/common/typesense"
	"basegraph.app/concierge/internal/model"
)

type typesenseIndex struct {
	client typesense.Client
}

func NewTypesenseIndex(client typesense.Client) WritableIndex {
	return &typesenseIndex{client: client}
}

func (i *typesenseIndex) Name() string { return "typesense" }

func (i *typesenseIndex) Search(ctx context.Context, query string, topK int) ([]model.KnowledgeSnippet, error) {
	hits, err := i.client.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	snippets := make([]model.KnowledgeSnippet, 0, len(hits))
	for _, h := range hits {
		snippets = append(snippets, model.KnowledgeSnippet{
			ID:      h.ID,
			Content: h.Content,
			Score:   h.Score,
			Metadata: model.SnippetMetadata{
				Type:  h.Type,
				Title: h.Title,
				Tags:  h.Tags,
			},
		})
	}
	return snippets, nil
}

func (i *typesenseIndex) Upsert(ctx context.Context, docs []model.KnowledgeDocument) error {
	out := make([]typesense.Document, len(docs))
	for n, d := range docs {
		out[n] = typesense.Document{
			ID:      d.ID,
			Title:   d.Title,
			Type:    d.Type,
			Tags:    d.Tags,
			Content: d.Content,
			Source:  d.Source,
		}
	}
	return i.client.UpsertDocuments(ctx, out)
}

func (i *typesenseIndex) Delete(ctx context.Context, id string) error {
	return i.client.DeleteDocument(ctx, id)
}
