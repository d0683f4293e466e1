package knowledge

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"basegraph.app/concierge/common"
	"basegraph.app/concierge/internal/model"
)

const (
	ingestBatchSize   = 50
	ingestParallelism = 8
	defaultDocType    = "general"
)

// Extensions lists the file types the loader understands.
var Extensions = []string{".md", ".markdown", ".txt"}

// Ingester loads knowledge files from a directory tree into a Writer.
type Ingester struct {
	writer Writer
	root   string
}

func NewIngester(writer Writer, root string) *Ingester {
	return &Ingester{writer: writer, root: root}
}

// IngestAll loads every supported file under the root and upserts them in batches.
func (i *Ingester) IngestAll(ctx context.Context) (int, error) {
	start := time.Now()

	var paths []string
	err := filepath.WalkDir(i.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsSupported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking %s: %w", i.root, err)
	}

	docs := make([]model.KnowledgeDocument, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestParallelism)
	for n, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := LoadFile(i.root, path)
			if err != nil {
				return err
			}
			docs[n] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	for lo := 0; lo < len(docs); lo += ingestBatchSize {
		hi := min(lo+ingestBatchSize, len(docs))
		if err := i.writer.Upsert(ctx, docs[lo:hi]); err != nil {
			return lo, fmt.Errorf("upserting documents: %w", err)
		}
	}

	slog.InfoContext(ctx, "knowledge ingested",
		"root", i.root,
		"documents", len(docs),
		"duration_ms", time.Since(start).Milliseconds())
	return len(docs), nil
}

// Apply mirrors a single file change into the index.
func (i *Ingester) Apply(ctx context.Context, ev FileEvent) error {
	switch ev.Operation {
	case FileDeleted:
		id, _, err := documentIdentity(i.root, ev.Path)
		if err != nil {
			return err
		}
		if err := i.writer.Delete(ctx, id); err != nil {
			return fmt.Errorf("deleting %s: %w", id, err)
		}
		slog.InfoContext(ctx, "knowledge document removed", "doc_id", id)
	case FileCreated, FileModified:
		doc, err := LoadFile(i.root, ev.Path)
		if err != nil {
			return err
		}
		if err := i.writer.Upsert(ctx, []model.KnowledgeDocument{doc}); err != nil {
			return fmt.Errorf("upserting %s: %w", doc.ID, err)
		}
		slog.InfoContext(ctx, "knowledge document updated", "doc_id", doc.ID)
	}
	return nil
}

func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadFile reads one knowledge file. The title is the first markdown heading
// (or the file name); a leading "Tags:" line becomes the tag list; the first
// directory below root is the document type.
func LoadFile(root, path string) (model.KnowledgeDocument, error) {
	id, docType, err := documentIdentity(root, path)
	if err != nil {
		return model.KnowledgeDocument{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return model.KnowledgeDocument{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var (
		title   string
		tags    []string
		content strings.Builder
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		switch {
		case title == "" && strings.HasPrefix(trimmed, "# "):
			title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			continue
		case tags == nil && strings.HasPrefix(strings.ToLower(trimmed), "tags:"):
			tags = parseTags(trimmed[len("tags:"):])
			continue
		}
		content.WriteString(line)
		content.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return model.KnowledgeDocument{}, fmt.Errorf("reading %s: %w", path, err)
	}

	if title == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if tags == nil {
		tags = []string{}
	}

	return model.KnowledgeDocument{
		ID:      id,
		Title:   title,
		Type:    docType,
		Tags:    tags,
		Content: strings.TrimSpace(content.String()),
		Source:  path,
	}, nil
}

func documentIdentity(root, path string) (id, docType string, err error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", "", fmt.Errorf("resolving %s: %w", path, err)
	}
	rel = filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))

	id, err = common.Slugify(rel, "")
	if err != nil {
		return "", "", fmt.Errorf("deriving id for %s: %w", path, err)
	}

	docType = defaultDocType
	if dir, _, found := strings.Cut(rel, "/"); found {
		if t, err := common.Slugify(dir, defaultDocType); err == nil {
			docType = t
		}
	}
	return id, docType, nil
}

func parseTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
