package arangodb

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
)

type Client interface {
	// Setup operations
	EnsureDatabase(ctx context.Context) error
	EnsureCollection(ctx context.Context) error

	// Write operations (for ingestion)
	UpsertDocuments(ctx context.Context, docs []Document) error
	DeleteDocument(ctx context.Context, id string) error

	// Read operations (for retrieval)
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)

	// Utility
	Close() error
}

type Config struct {
	URL        string
	Username   string
	Password   string
	Database   string
	Collection string
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("arangodb URL is required")
	}
	if c.Username == "" {
		return fmt.Errorf("arangodb username is required")
	}
	if c.Database == "" {
		return fmt.Errorf("arangodb database name is required")
	}
	if c.Collection == "" {
		return fmt.Errorf("arangodb collection name is required")
	}
	return nil
}

type client struct {
	conn         connection.Connection
	arangoClient arangodb.Client
	db           arangodb.Database
	cfg          Config
}

// New connects to ArangoDB and opens (creating if needed) the configured
// database and knowledge collection.
func New(ctx context.Context, cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("arangodb config: %w", err)
	}

	endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL}) // round robins from the urls. we just have one for now
	conn := connection.NewHttp2Connection(connection.DefaultHTTP2ConfigurationWrapper(endpoint, true))

	auth := connection.NewBasicAuth(cfg.Username, cfg.Password)
	if err := conn.SetAuthentication(auth); err != nil {
		return nil, fmt.Errorf("arangodb auth: %w", err)
	}

	c := &client{
		conn:         conn,
		arangoClient: arangodb.NewClient(conn),
		cfg:          cfg,
	}

	if err := c.EnsureDatabase(ctx); err != nil {
		return nil, err
	}
	if err := c.EnsureCollection(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *client) Close() error {
	return nil
}

func (c *client) EnsureDatabase(ctx context.Context) error {
	start := time.Now()

	exists, err := c.arangoClient.DatabaseExists(ctx, c.cfg.Database)
	if err != nil {
		return fmt.Errorf("check database exists: %w", err)
	}

	if !exists {
		_, err = c.arangoClient.CreateDatabase(ctx, c.cfg.Database, nil)
		if err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		slog.InfoContext(ctx, "arangodb database created",
			"database", c.cfg.Database,
			"duration_ms", time.Since(start).Milliseconds())
	}

	db, err := c.arangoClient.GetDatabase(ctx, c.cfg.Database, nil)
	if err != nil {
		return fmt.Errorf("get database: %w", err)
	}
	c.db = db

	return nil
}

func (c *client) EnsureCollection(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized, call EnsureDatabase first")
	}

	name := c.cfg.Collection
	exists, err := c.db.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s exists: %w", name, err)
	}
	if exists {
		return nil
	}

	colType := arangodb.CollectionTypeDocument
	if _, err := c.db.CreateCollectionV2(ctx, name, &arangodb.CreateCollectionPropertiesV2{Type: &colType}); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	slog.InfoContext(ctx, "arangodb collection created", "collection", name)
	return nil
}

const upsertQuery = `
FOR doc IN @docs
  UPSERT { _key: doc._key }
  INSERT doc
  UPDATE doc
  IN @@collection`

// UpsertDocuments writes documents keyed by their id; re-ingesting a file
// replaces the previous version.
func (c *client) UpsertDocuments(ctx context.Context, docs []Document) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if len(docs) == 0 {
		return nil
	}

	start := time.Now()
	rows := make([]map[string]any, len(docs))
	for i, d := range docs {
		rows[i] = map[string]any{
			"_key":    makeKey(d.ID),
			"doc_id":  d.ID,
			"title":   d.Title,
			"type":    d.Type,
			"tags":    d.Tags,
			"content": d.Content,
			"source":  d.Source,
		}
	}

	cursor, err := c.db.Query(ctx, upsertQuery, &arangodb.QueryOptions{
		BindVars: map[string]any{
			"docs":        rows,
			"@collection": c.cfg.Collection,
		},
	})
	if err != nil {
		return fmt.Errorf("upsert documents: %w", err)
	}
	defer cursor.Close()

	slog.DebugContext(ctx, "arangodb documents upserted",
		"collection", c.cfg.Collection,
		"count", len(docs),
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

func (c *client) DeleteDocument(ctx context.Context, id string) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}

	cursor, err := c.db.Query(ctx, `REMOVE { _key: @key } IN @@collection OPTIONS { ignoreErrors: true }`, &arangodb.QueryOptions{
		BindVars: map[string]any{
			"key":         makeKey(id),
			"@collection": c.cfg.Collection,
		},
	})
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	defer cursor.Close()
	return nil
}

// searchQuery scores documents by the share of query tokens found in their
// title, tags and content, using the built-in English text analyzer.
const searchQuery = `
LET terms = UNIQUE(TOKENS(@query, "text_en"))
FOR d IN @@collection
  LET hay = TOKENS(CONCAT_SEPARATOR(" ", d.title, CONCAT_SEPARATOR(" ", d.tags), d.content), "text_en")
  LET hits = LENGTH(INTERSECTION(terms, hay))
  FILTER hits > 0
  LET score = hits / LENGTH(terms)
  SORT score DESC, d.doc_id ASC
  LIMIT @limit
  RETURN { doc_id: d.doc_id, title: d.title, type: d.type, tags: d.tags, content: d.content, score: score }`

func (c *client) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	start := time.Now()
	cursor, err := c.db.Query(ctx, searchQuery, &arangodb.QueryOptions{
		BindVars: map[string]any{
			"query":       query,
			"limit":       limit,
			"@collection": c.cfg.Collection,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer cursor.Close()

	var hits []SearchHit
	for cursor.HasMore() {
		var hit SearchHit
		if _, err := cursor.ReadDocument(ctx, &hit); err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		hits = append(hits, hit)
	}

	slog.DebugContext(ctx, "arangodb search completed",
		"collection", c.cfg.Collection,
		"hits", len(hits),
		"duration_ms", time.Since(start).Milliseconds())

	return hits, nil
}

// makeKey maps arbitrary document ids onto valid _key values.
func makeKey(id string) string {
	hash := md5.Sum([]byte(id))
	return hex.EncodeToString(hash[:])[:16]
}
