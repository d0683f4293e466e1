package knowledge

import (
	"context"

	"basegraph.app/concierge/common/arangodb"
	"basegraph.app/concierge/internal/model"
)

type arangoIndex struct {
	client arangodb.Client
}

func NewArangoIndex(client arangodb.Client) WritableIndex {
	return &arangoIndex{client: client}
}

func (i *arangoIndex) Name() string { return "arangodb" }

func (i *arangoIndex) Search(ctx context.Context, query string, topK int) ([]model.KnowledgeSnippet, error) {
	hits, err := i.client.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	snippets := make([]model.KnowledgeSnippet, 0, len(hits))
	for _, h := range hits {
		snippets = append(snippets, model.KnowledgeSnippet{
			ID:      h.DocID,
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

func (i *arangoIndex) Upsert(ctx context.Context, docs []model.KnowledgeDocument) error {
	out := make([]arangodb.Document, len(docs))
	for n, d := range docs {
		out[n] = arangodb.Document{
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

func (i *arangoIndex) Delete(ctx context.Context, id string) error {
	return i.client.DeleteDocument(ctx, id)
}
