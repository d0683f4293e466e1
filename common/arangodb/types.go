package arangodb

// Document is a knowledge base entry as stored in the collection.
type Document struct {
	ID      string
	Title   string
	Type    string
	Tags    []string
	Content string
	Source  string
}

// SearchHit is one scored result of Search.
type SearchHit struct {
	DocID   string   `json:"doc_id"`
	Title   string   `json:"title"`
	Type    string   `json:"type"`
	Tags    []string `json:"tags"`
	Content string   `json:"content"`
	Score   float64  `json:"score"`
}
