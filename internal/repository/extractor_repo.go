package repository

import "github.com/user/forum-crawler/internal/entity"

// Extractor turns forum HTML into domain records. Implementations never fail:
// unparseable input yields empty results.
type Extractor interface {
	// ExtractListing parses one listing page. Rows whose id cannot be found
	// are returned with an empty ID; sticky rows are returned flagged.
	ExtractListing(body []byte, sectionID string) []entity.Post
	// ExtractDetail parses a post detail page into its body text and image URLs.
	ExtractDetail(body []byte) entity.PostDetail
}
