package discuz

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/forum-crawler/internal/entity"
	"github.com/user/forum-crawler/pkg/utils"
)

// ExtractDetail returns the text and image URLs of the first content node
// that yields non-empty text.
func (e *Extractor) ExtractDetail(body []byte) entity.PostDetail {
	doc, ok := e.parse(body)
	if !ok {
		return entity.PostDetail{Images: []string{}}
	}
	for _, selector := range contentSelectors {
		node := doc.Find(selector).First()
		if node.Length() == 0 {
			continue
		}
		if detail, ok := e.extractContent(node); ok {
			e.logger.Debug("content node found", zap.String("selector", selector), zap.Int("images", len(detail.Images)))
			return detail
		}
	}
	return entity.PostDetail{Images: []string{}}
}

// extractContent works on a copy so a rejected locator leaves the document intact.
func (e *Extractor) extractContent(node *goquery.Selection) (entity.PostDetail, bool) {
	node = node.Clone()

	seen := make(map[string]struct{})
	images := []string{}
	collect := func(_ int, img *goquery.Selection) {
		u, ok := e.imageURL(img)
		if !ok {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		images = append(images, u)
	}

	node.Find(preRenderWrapper + " img").Each(collect)
	node.Find(nonContent).Remove()

	text := stripBoilerplate(node.Text())
	if text == "" {
		return entity.PostDetail{}, false
	}
	node.Find("img").Each(collect)

	return entity.PostDetail{
		Content: utils.Truncate(text, entity.MaxContentLength),
		Images:  images,
	}, true
}

// imageURL picks the full-size override, then the file attribute, then a
// src that passes the reject and accept lists.
func (e *Extractor) imageURL(img *goquery.Selection) (string, bool) {
	if v, ok := attr(img, "zoomfile"); ok {
		return e.absolute(v)
	}
	if v, ok := attr(img, "file"); ok {
		return e.absolute(v)
	}
	src, ok := attr(img, "src")
	if !ok || matchesAny(rejectedImageSrc, src) || !matchesAny(acceptedImageSrc, src) {
		return "", false
	}
	return e.absolute(src)
}

func stripBoilerplate(s string) string {
	for _, re := range boilerplate {
		s = re.ReplaceAllString(s, " ")
	}
	return utils.CleanText(strings.TrimSpace(s))
}
