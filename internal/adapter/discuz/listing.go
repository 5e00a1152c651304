package discuz

import (
	"slices"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/forum-crawler/internal/entity"
	"github.com/user/forum-crawler/pkg/utils"
)

// ExtractListing parses every thread row of a listing page.
func (e *Extractor) ExtractListing(body []byte, sectionID string) []entity.Post {
	doc, ok := e.parse(body)
	if !ok {
		return nil
	}
	crawlTime := e.now()
	var posts []entity.Post
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if p, ok := e.parseRow(row); ok {
			p.SectionID = sectionID
			p.CrawlTime = crawlTime
			posts = append(posts, p)
		}
	})
	e.logger.Debug("listing parsed", zap.String("fid", sectionID), zap.Int("posts", len(posts)))
	return posts
}

// parseRow returns false for rows that are not thread entries.
func (e *Extractor) parseRow(row *goquery.Selection) (entity.Post, bool) {
	link, ok := titleLink(row)
	if !ok {
		return entity.Post{}, false
	}
	href, _ := link.Attr("href")
	postURL, ok := e.absolute(href)
	if !ok {
		return entity.Post{}, false
	}

	p := entity.Post{
		Title:    utils.CleanText(link.Text()),
		URL:      postURL,
		Username: entity.UnknownUsername,
		Images:   []string{},
		IsCrawl:  true,
	}
	p.ID, _ = postID(row, postURL)

	if user, ok := authorLink(row); ok {
		p.Username = utils.CleanText(user.Text())
		if href, ok := attr(user, "href"); ok {
			if raw, ok := firstSubmatch(userIDPattern, href); ok {
				if uid, err := strconv.ParseInt(raw, 10, 64); err == nil {
					p.UserID = &uid
				}
			}
		}
	}
	if avatar, ok := e.avatarURL(row); ok {
		p.AvatarURL = avatar
	}
	p.PublishTime, _ = publishTime(row)
	p.ReplyCount = utils.ParseCount(row.Find("span.replayNum").First().Text())
	p.ViewCount = utils.ParseCount(row.Find("span.viewNum").First().Text())
	p.Category, _ = category(row)
	p.IsSticky = hasImage(row, func(img *goquery.Selection) bool {
		src, _ := img.Attr("src")
		return stickyIcon.MatchString(src)
	})
	p.IsEssence = hasImage(row, func(img *goquery.Selection) bool {
		alt, _ := img.Attr("alt")
		return essenceAlt.MatchString(alt)
	})
	return p, true
}

func titleLink(row *goquery.Selection) (*goquery.Selection, bool) {
	if link := row.Find("a.s.xst").First(); link.Length() > 0 {
		return link, true
	}
	link := row.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		return threadURLID.MatchString(href)
	}).First()
	return link, link.Length() > 0
}

// postID prefers the row container id, then the thread URL forms.
func postID(row *goquery.Selection, postURL string) (string, bool) {
	if id, ok := attr(row.Closest("tbody"), "id"); ok {
		if m, ok := firstSubmatch(normalThreadID, id); ok {
			return m, true
		}
	}
	if m, ok := firstSubmatch(threadURLID, postURL); ok {
		return m, true
	}
	return firstSubmatch(tidParamID, postURL)
}

func authorLink(row *goquery.Selection) (*goquery.Selection, bool) {
	candidates := []*goquery.Selection{
		row.Find("td.by cite a").First(),
		row.Find(`td.by a[href*="space-uid"]`).First(),
		row.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			return userLinkHref.MatchString(href)
		}).First(),
		row.Find("a[class]").FilterFunction(func(_ int, a *goquery.Selection) bool {
			class, _ := a.Attr("class")
			return userLinkClass.MatchString(class)
		}).First(),
	}
	for _, c := range candidates {
		if c.Length() > 0 {
			if utils.CleanText(c.Text()) == "" {
				return nil, false
			}
			return c, true
		}
	}
	return nil, false
}

func (e *Extractor) avatarURL(row *goquery.Selection) (string, bool) {
	img := row.Find("img.author-avatar").First()
	if img.Length() == 0 {
		img = row.Find(`img[src*="avatar"]`).First()
	}
	src, ok := attr(img, "src")
	if !ok {
		return "", false
	}
	return e.absolute(src)
}

// publishTime prefers a span title holding a date, then a span whose text does.
func publishTime(row *goquery.Selection) (string, bool) {
	var found string
	row.Find("span[title]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t, _ := s.Attr("title"); datePattern.MatchString(t) {
			found = t
			return false
		}
		return true
	})
	if found != "" {
		return found, true
	}
	row.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := utils.CleanText(s.Text()); datePattern.MatchString(t) {
			found = t
			return false
		}
		return true
	})
	return found, found != ""
}

func category(row *goquery.Selection) (string, bool) {
	var found string
	row.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if t := utils.CleanText(a.Text()); slices.Contains(entity.Categories, t) {
			found = t
			return false
		}
		return true
	})
	return found, found != ""
}

func hasImage(row *goquery.Selection, match func(*goquery.Selection) bool) bool {
	return row.Find("img").FilterFunction(func(_ int, img *goquery.Selection) bool {
		return match(img)
	}).Length() > 0
}
