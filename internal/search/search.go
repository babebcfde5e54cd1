package search

// SectionEntry is the data we index for a draft section: its wizard
// inputs and any generated output, flattened to plain text.
type SectionEntry struct {
	ID        string `json:"id"`
	OwnerID   string `json:"ownerId"`
	Namespace string `json:"namespace"`
	SectionID string `json:"sectionId"`
	Content   string `json:"content"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	Namespace string `json:"namespace"`
	SectionID string `json:"sectionId"`
	Snippet   string `json:"snippet"`
}

// Query describes a search request. Results are always scoped to the
// requesting owner.
type Query struct {
	OwnerID         string
	Text            string
	FilterNamespace string // empty = all namespaces
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over draft sections.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}
