package search

// Result is a single story search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Status  string `json:"status"`
	OwnerID string `json:"ownerId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text        string
	FilterOwner string // empty = all owners
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// StoryRecord is the data we index for a story.
type StoryRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	OwnerID     string `json:"ownerId"`
	Estimate    int    `json:"estimate"`
}
