package entity

import "time"

// Column limits of the post table.
const (
	MaxTitleLength    = 255
	MaxURLLength      = 512
	MaxUsernameLength = 100
	MaxCategoryLength = 100
	MaxContentLength  = 65535
)

// UnknownUsername is stored when no author could be extracted from a listing row.
const UnknownUsername = "未知用户"

// Categories is the closed vocabulary of forum category labels.
var Categories = []string{"游戏包网", "游戏API", "支付渠道", "广告营销", "云服务", "技术外包", "媒体渠道", "本地服务"}

// Post is one forum thread as seen on a listing page and, after enrichment,
// its detail page.
type Post struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	UserID      *int64    `json:"user_id"`
	Username    string    `json:"username"`
	AvatarURL   string    `json:"avatar_url,omitempty"`   // empty means unknown
	PublishTime string    `json:"publish_time,omitempty"` // free-form, empty means unknown
	ReplyCount  int       `json:"reply_count"`
	ViewCount   int       `json:"view_count"`
	Images      []string  `json:"images"` // remote URLs until enrichment, local tokens afterwards
	Category    string    `json:"category"`
	IsSticky    bool      `json:"is_sticky"`
	IsEssence   bool      `json:"is_essence"`
	CrawlTime   time.Time `json:"crawl_time"`
	SectionID   string    `json:"section_id"`
	Content     string    `json:"content"`
	IsCrawl     bool      `json:"is_crawl"`
}

// PostDetail is what a detail page yields: cleaned text and content image URLs.
type PostDetail struct {
	Content string
	Images  []string
}

// PostRow is a normalized Post ready to be written to the post table.
type PostRow struct {
	ForumPostID int64
	Title       string
	URL         string
	UserID      *int64
	Username    string
	AvatarURL   *string
	PublishTime *string
	ReplyCount  int
	ViewCount   int
	ImagesJSON  string
	Category    string
	IsSticky    bool
	IsEssence   bool
	CrawlTime   time.Time
	SectionID   string
	IsCrawl     bool
	Content     string
}
