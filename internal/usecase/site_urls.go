package usecase

import (
	"strconv"
	"strings"

	"github.com/user/forum-crawler/pkg/utils"
)

// SiteURLs builds listing and detail URLs from the configured templates.
type SiteURLs struct {
	Base            string
	ListingTemplate string
	DetailTemplate  string
}

// Listing returns the URL of one page of a section.
func (s SiteURLs) Listing(sectionID string, page int) string {
	return utils.ExpandTemplate(s.ListingTemplate, map[string]string{
		"base": strings.TrimRight(s.Base, "/"),
		"fid":  sectionID,
		"page": strconv.Itoa(page),
	})
}

// Detail returns the URL of a single post.
func (s SiteURLs) Detail(postID string) string {
	return utils.ExpandTemplate(s.DetailTemplate, map[string]string{
		"base": strings.TrimRight(s.Base, "/"),
		"id":   postID,
	})
}
