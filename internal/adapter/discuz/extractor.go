// Package discuz extracts post records from the listing and detail pages of a
// Discuz! based forum.
package discuz

import (
	"bytes"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/forum-crawler/pkg/utils"
)

// Extractor implements repository.Extractor with goquery.
type Extractor struct {
	base   *url.URL
	now    func() time.Time
	logger *zap.Logger
}

// NewExtractor resolves relative links against baseURL.
func NewExtractor(baseURL string, logger *zap.Logger) (*Extractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Extractor{base: base, now: time.Now, logger: logger.Named("extractor")}, nil
}

func (e *Extractor) parse(body []byte) (*goquery.Document, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		e.logger.Warn("unparseable page", zap.Error(err))
		return nil, false
	}
	return doc, true
}

func (e *Extractor) absolute(ref string) (string, bool) {
	abs, err := utils.ToAbsoluteURL(e.base, ref)
	if err != nil || abs == "" {
		return "", false
	}
	return abs, true
}
