package typesense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ts "github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
	"github.com/typesense/typesense-go/v4/typesense/api/pointer"
)

// queryBy lists the searchable fields in weight order.
const queryBy = "title,tags,content"

type Client interface {
	CreateCollection(ctx context.Context) error
	UpsertDocuments(ctx context.Context, docs []Document) error
	DeleteDocument(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("typesense URL is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("typesense API key is required")
	}
	if c.Collection == "" {
		return fmt.Errorf("typesense collection is required")
	}
	return nil
}

type client struct {
	ts         *ts.Client
	collection string
}

func New(cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("typesense config: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &client{
		ts: ts.NewClient(
			ts.WithServer(cfg.URL),
			ts.WithAPIKey(cfg.APIKey),
			ts.WithConnectionTimeout(timeout),
		),
		collection: cfg.Collection,
	}, nil
}

// CreateCollection creates the knowledge collection unless it already exists.
func (c *client) CreateCollection(ctx context.Context) error {
	_, err := c.ts.Collection(c.collection).Retrieve(ctx)
	if err == nil {
		return nil
	}
	if !isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("retrieve collection %s: %w", c.collection, err)
	}

	schema := &api.CollectionSchema{
		Name: c.collection,
		Fields: []api.Field{
			{Name: "title", Type: "string"},
			{Name: "type", Type: "string", Facet: pointer.True()},
			{Name: "tags", Type: "string[]", Facet: pointer.True(), Optional: pointer.True()},
			{Name: "content", Type: "string"},
			{Name: "source", Type: "string", Index: pointer.False(), Optional: pointer.True()},
		},
	}
	if _, err := c.ts.Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("create collection %s: %w", c.collection, err)
	}
	slog.InfoContext(ctx, "typesense collection created", "collection", c.collection)
	return nil
}

func (c *client) UpsertDocuments(ctx context.Context, docs []Document) error {
	start := time.Now()
	for _, d := range docs {
		if _, err := c.ts.Collection(c.collection).Documents().Upsert(ctx, d, &api.DocumentIndexParameters{}); err != nil {
			return fmt.Errorf("upsert document %s: %w", d.ID, err)
		}
	}
	slog.DebugContext(ctx, "typesense documents upserted",
		"collection", c.collection,
		"count", len(docs),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (c *client) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.ts.Collection(c.collection).Document(id).Delete(ctx)
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// Search runs a keyword query. Scores are the typesense text match relative to
// the best hit, so the top result always scores 1.
func (c *client) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	res, err := c.ts.Collection(c.collection).Documents().Search(ctx, &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String(queryBy),
		PerPage: pointer.Int(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.collection, err)
	}
	if res.Hits == nil {
		return nil, nil
	}

	var best int64
	for _, h := range *res.Hits {
		if h.TextMatch != nil && *h.TextMatch > best {
			best = *h.TextMatch
		}
	}

	hits := make([]SearchHit, 0, len(*res.Hits))
	for _, h := range *res.Hits {
		if h.Document == nil {
			continue
		}
		hit := hitFromDocument(*h.Document)
		if h.TextMatch != nil && best > 0 {
			hit.Score = float64(*h.TextMatch) / float64(best)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func hitFromDocument(doc map[string]interface{}) SearchHit {
	hit := SearchHit{
		ID:      stringField(doc, "id"),
		Title:   stringField(doc, "title"),
		Type:    stringField(doc, "type"),
		Content: stringField(doc, "content"),
	}
	if raw, ok := doc["tags"].([]interface{}); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				hit.Tags = append(hit.Tags, s)
			}
		}
	}
	return hit
}

func stringField(doc map[string]interface{}, key string) string {
	s, _ := doc[key].(string)
	return s
}

func isStatus(err error, status int) bool {
	var httpErr *ts.HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == status
}
