package typesense

// Document is a knowledge base entry as indexed in typesense.
type Document struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Type    string   `json:"type"`
	Tags    []string `json:"tags,omitempty"`
	Content string   `json:"content"`
	Source  string   `json:"source,omitempty"`
}

type SearchHit struct {
	ID      string
	Title   string
	Type    string
	Tags    []string
	Content string
	Score   float64
}
