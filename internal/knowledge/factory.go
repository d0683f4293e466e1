package knowledge

import (
	"context"
	"fmt"

	"basegraph.app/concierge/common/arangodb"
	"basegraph.app/concierge/common/typesense"
	"basegraph.app/concierge/core/config"
)

// Open builds the index for the configured backend. Typesense and ArangoDB
// collections are created on first use.
func Open(ctx context.Context, cfg config.KnowledgeConfig) (WritableIndex, error) {
	switch cfg.Backend {
	case "typesense":
		client, err := typesense.New(typesense.Config{
			URL:        cfg.TypesenseURL,
			APIKey:     cfg.TypesenseAPIKey,
			Collection: cfg.TypesenseCollection,
		})
		if err != nil {
			return nil, err
		}
		if err := client.CreateCollection(ctx); err != nil {
			return nil, fmt.Errorf("ensuring typesense collection: %w", err)
		}
		return NewTypesenseIndex(client), nil
	case "arangodb":
		client, err := arangodb.New(ctx, arangodb.Config{
			URL:        cfg.ArangoURL,
			Username:   cfg.ArangoUsername,
			Password:   cfg.ArangoPassword,
			Database:   cfg.ArangoDatabase,
			Collection: cfg.ArangoCollection,
		})
		if err != nil {
			return nil, err
		}
		return NewArangoIndex(client), nil
	case "static", "":
		return NewStaticIndex()
	default:
		return nil, fmt.Errorf("unknown knowledge backend %q", cfg.Backend)
	}
}
