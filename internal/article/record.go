package article

// Record is the normalized representation of a scraped article. It only lives for one request.
type Record struct {
	Address     string
	Title       string
	Summary     string
	Sections    []string
	ArticleText string
	Entities    Entities
}

// Entities groups link titles by their heuristic classification.
type Entities struct {
	People        []string `json:"people"`
	Organizations []string `json:"organizations"`
	Locations     []string `json:"locations"`
}
