package model

// KnowledgeSnippet is a ranked passage returned by the knowledge index.
// Higher Score means more relevant.
type KnowledgeSnippet struct {
	ID       string          `json:"id"`
	Content  string          `json:"content"`
	Score    float64         `json:"score"`
	Metadata SnippetMetadata `json:"metadata"`
}

type SnippetMetadata struct {
	Type  string   `json:"type,omitempty"`
	Title string   `json:"title,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// KnowledgeDocument is a knowledge-base entry as written to an index.
type KnowledgeDocument struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Type    string   `json:"type"`
	Tags    []string `json:"tags"`
	Content string   `json:"content"`
	Source  string   `json:"source"`
}
