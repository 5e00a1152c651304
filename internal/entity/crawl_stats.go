package entity

// CrawlStats summarizes one walk over the configured sections.
type CrawlStats struct {
	Sections       int      `json:"sections"`
	FailedSections []string `json:"failed_sections,omitempty"`
	Pages          int      `json:"pages"`
	Extracted      int      `json:"extracted"`
	StickyDropped  int      `json:"sticky_dropped"`
	NoIDDropped    int      `json:"no_id_dropped"`
	NewRecords     int      `json:"new_records"`
	DetailFetches  int      `json:"detail_fetches"`
	DetailFailures int      `json:"detail_failures"`
	Persisted      int      `json:"persisted"`
}
