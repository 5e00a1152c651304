package request

// CrawlRequest starts a manual crawl. Zero values fall back to the configured defaults.
type CrawlRequest struct {
	SectionIDs []string `json:"fids"`
	MaxPages   int      `json:"max_pages"`
	Overwrite  bool     `json:"overwrite"`
}
