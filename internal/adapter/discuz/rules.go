package discuz

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Listing row rules.
var (
	normalThreadID = regexp.MustCompile(`normalthread_(\d+)`)
	threadURLID    = regexp.MustCompile(`thread-(\d+)`)
	tidParamID     = regexp.MustCompile(`tid=(\d+)`)
	userIDPattern  = regexp.MustCompile(`(?:space-uid-|uid=)(\d+)`)
	userLinkHref   = regexp.MustCompile(`space-uid|uid=\d+`)
	userLinkClass  = regexp.MustCompile(`username|author`)
	datePattern    = regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}`)
	stickyIcon     = regexp.MustCompile(`static/image/common/pin_.*\.gif`)
	essenceAlt     = regexp.MustCompile(`精华|essence|hot`)
)

// contentSelectors are tried in order; the first one yielding text wins.
var contentSelectors = []string{
	"div.t_f",
	"div.t_fsz",
	"div.postmessage",
	"div#postmessage",
	"div.content",
	"div.message",
	"div.post_content",
	"div.thread_content",
	`div[id*="postmessage"]`,
	`div[class*="postmessage"]`,
	"td.t_f",
	`td[id*="postmessage"]`,
}

// preRenderWrapper is the node the forum wraps lazily loaded attachment thumbnails in.
const preRenderWrapper = "ignore_js_op"

// nonContent is removed from the chosen content node before its text is read.
const nonContent = "script, style, " + preRenderWrapper + ", .aimg_tip, .tattl, .pattl, .attach_nopermission"

// boilerplate is attachment chrome that survives node removal as plain text.
var boilerplate = []*regexp.Regexp{
	regexp.MustCompile(`\S+\.(?i:jpe?g|png|gif|webp|bmp)\s*\([\d.]+\s*[KMG]?B?,\s*下载次数:\s*\d+\)`),
	regexp.MustCompile(`下载附件`),
	regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}\s+\d{1,2}:\d{2}(:\d{2})?\s*上传`),
}

// Image src rules. A src is rejected first, then must match the accept list.
var (
	rejectedImageSrc = []*regexp.Regexp{
		regexp.MustCompile(`(?i)none\.gif`),
		regexp.MustCompile(`(?i)blank\.gif`),
		regexp.MustCompile(`(?i)loading\.gif`),
		regexp.MustCompile(`(?i)spacer\.gif`),
		regexp.MustCompile(`(?i)pixel\.gif`),
		regexp.MustCompile(`(?i)1x1\.gif`),
		regexp.MustCompile(`(?i)clear\.gif`),
		regexp.MustCompile(`(?i)static/image/`),
	}
	acceptedImageSrc = []*regexp.Regexp{
		regexp.MustCompile(`(?i)attachment/`),
		regexp.MustCompile(`(?i)uploads/`),
		regexp.MustCompile(`(?i)images/`),
		regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp)$`),
	}
)

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// firstSubmatch returns the first capture group of re in s.
func firstSubmatch(re *regexp.Regexp, s string) (string, bool) {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// attr returns a trimmed, non-empty attribute value.
func attr(s *goquery.Selection, name string) (string, bool) {
	v, ok := s.Attr(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
