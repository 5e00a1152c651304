package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sort"
	"strconv"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/user/forum-crawler/internal/entity"
	"github.com/user/forum-crawler/pkg/metrics"
)

var errNotFound = errors.New("not found")

// fakeFetcher serves canned bodies and counts requests per URL.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string][]byte
	fail  map[string]error
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string][]byte{}, fail: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*entity.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, errNotFound
	}
	return &entity.FetchResult{URL: url, StatusCode: 200, Body: body}, nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) total(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for u, c := range f.calls {
		if len(u) >= len(prefix) && u[:len(prefix)] == prefix {
			n += c
		}
	}
	return n
}

// jsonExtractor reads listing pages as JSON arrays of posts and detail pages
// as JSON detail objects.
type jsonExtractor struct{}

func (jsonExtractor) ExtractListing(body []byte, sectionID string) []entity.Post {
	var posts []entity.Post
	if err := json.Unmarshal(body, &posts); err != nil {
		return nil
	}
	for i := range posts {
		posts[i].SectionID = sectionID
		posts[i].IsCrawl = true
	}
	return posts
}

func (jsonExtractor) ExtractDetail(body []byte) entity.PostDetail {
	var d entity.PostDetail
	_ = json.Unmarshal(body, &d)
	return d
}

// fakeImages maps every URL to a token without touching the filesystem.
type fakeImages struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeImages) Download(_ context.Context, url, _ string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return "images/boniu/2025/9/11/" + path.Base(url), true
}

func (f *fakeImages) DownloadAll(ctx context.Context, urls []string, savePath string) []string {
	out := []string{}
	for _, u := range urls {
		if t, ok := f.Download(ctx, u, savePath); ok {
			out = append(out, t)
		}
	}
	return out
}

// memPosts is an in-memory post store with upsert semantics.
type memPosts struct {
	mu         sync.Mutex
	rows       map[int64]entity.PostRow
	batches    [][]entity.PostRow
	failWrites error
	failIDs    error
}

func newMemPosts() *memPosts {
	return &memPosts{rows: map[int64]entity.PostRow{}}
}

func (m *memPosts) ExistingIDs(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIDs != nil {
		return nil, m.failIDs
	}
	ids := make([]string, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return ids, nil
}

func (m *memPosts) Upsert(_ context.Context, rows []entity.PostRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	m.batches = append(m.batches, rows)
	for _, r := range rows {
		m.rows[r.ForumPostID] = r
	}
	return nil
}

func (m *memPosts) UpdateContent(_ context.Context, rows []entity.PostRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	m.batches = append(m.batches, rows)
	for _, r := range rows {
		stored, ok := m.rows[r.ForumPostID]
		if !ok {
			continue
		}
		stored.Title, stored.Content, stored.ImagesJSON = r.Title, r.Content, r.ImagesJSON
		m.rows[r.ForumPostID] = stored
	}
	return nil
}

func (m *memPosts) Ping(context.Context) error { return nil }

func (m *memPosts) ids() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// memLogs records execution log calls.
type memLogs struct {
	mu        sync.Mutex
	started   []entity.ExecutionLog
	finished  []entity.RunStatus
	messages  []string
	counts    []int
	failStart error
}

func (m *memLogs) Start(_ context.Context, log *entity.ExecutionLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStart != nil {
		return 0, m.failStart
	}
	m.started = append(m.started, *log)
	return int64(len(m.started)), nil
}

func (m *memLogs) Finish(_ context.Context, _ int64, status entity.RunStatus, message string, postsCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, status)
	m.messages = append(m.messages, message)
	m.counts = append(m.counts, postsCount)
	return nil
}

func (m *memLogs) Recent(context.Context, int) ([]entity.ExecutionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.ExecutionLog(nil), m.started...), nil
}

var testURLs = SiteURLs{
	Base:            "https://bbs.example.com",
	ListingTemplate: "{base}/forum.php?mod=forumdisplay&fid={fid}&page={page}",
	DetailTemplate:  "{base}/forum.php?mod=viewthread&tid={id}",
}

type harness struct {
	fetcher *fakeFetcher
	posts   *memPosts
	images  *fakeImages
	walker  *SectionWalker
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, policy string) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h := &harness{
		fetcher: newFakeFetcher(),
		posts:   newMemPosts(),
		images:  &fakeImages{},
		metrics: metrics.NewNop(),
	}
	enricher := NewDetailEnricher(h.fetcher, jsonExtractor{}, h.images, h.metrics, logger)
	writer := NewBatchWriter(h.posts, h.metrics, logger)
	h.walker = NewSectionWalker(WalkerConfig{URLs: testURLs, StickyPolicy: policy},
		h.fetcher, jsonExtractor{}, h.posts, enricher, writer, h.metrics, logger)
	return h
}

// listing registers a listing page; each post gets a detail page with one image.
func (h *harness) listing(t *testing.T, fid string, page int, posts ...entity.Post) {
	t.Helper()
	for i := range posts {
		if posts[i].URL == "" && posts[i].ID != "" {
			posts[i].URL = testURLs.Detail(posts[i].ID)
		}
		if posts[i].URL != "" {
			detail, _ := json.Marshal(entity.PostDetail{
				Content: "body of " + posts[i].ID,
				Images:  []string{"https://bbs.example.com/data/attachment/" + posts[i].ID + ".jpg"},
			})
			h.fetcher.pages[posts[i].URL] = detail
		}
	}
	body, err := json.Marshal(posts)
	if err != nil {
		t.Fatal(err)
	}
	h.fetcher.pages[testURLs.Listing(fid, page)] = body
}

func post(id string) entity.Post {
	return entity.Post{ID: id, Title: "title " + id, Username: entity.UnknownUsername, Images: []string{}}
}

func sticky(id string) entity.Post {
	p := post(id)
	p.IsSticky = true
	return p
}
