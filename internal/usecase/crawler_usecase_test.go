package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/user/forum-crawler/internal/entity"
)

func walk(t *testing.T, h *harness, opts CrawlOptions) *entity.CrawlStats {
	t.Helper()
	stats, err := h.walker.Walk(context.Background(), opts)
	require.NoError(t, err)
	return stats
}

func TestWalkEndToEndStopsAtKnownPage(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	h.listing(t, "89", 1, post("100"), post("101"), post("102"))
	h.listing(t, "89", 2, post("103"), post("104"))
	h.listing(t, "89", 3, post("100"), post("101"))
	h.listing(t, "89", 4, post("105"))

	res := walk(t, h, CrawlOptions{SectionIDs: []string{"89"}, MaxPages: 10})

	require.Equal(t, []int64{100, 101, 102, 103, 104}, h.posts.ids())
	require.Equal(t, 5, res.Persisted)
	require.Equal(t, 3, res.Pages)
	require.Len(t, h.posts.batches, 2, "one batch per page")
	require.Zero(t, h.fetcher.count(testURLs.Listing("89", 4)))

	row := h.posts.rows[100]
	require.Equal(t, "body of 100", row.Content)
	require.Equal(t, `["images/boniu/2025/9/11/100.jpg"]`, row.ImagesJSON)
	require.Equal(t, "89", row.SectionID)
}

func TestWalkIdempotentRecrawl(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	h.listing(t, "89", 1, post("100"), post("101"), post("102"))
	h.listing(t, "89", 2, post("103"))
	opts := CrawlOptions{SectionIDs: []string{"89"}, MaxPages: 2}

	first := walk(t, h, opts)
	require.Equal(t, 4, first.Persisted)
	detailCalls := h.fetcher.total(testURLs.Detail(""))
	require.Equal(t, 4, detailCalls)

	second := walk(t, h, opts)
	require.Zero(t, second.Persisted)
	require.Zero(t, second.DetailFetches)
	require.Equal(t, 1, second.Pages)
	require.Equal(t, detailCalls, h.fetcher.total(testURLs.Detail("")))
}

func TestWalkNeverPersistsSticky(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	h.listing(t, "89", 1, sticky("1"), post("100"), sticky("2"), post("101"))

	walk(t, h, CrawlOptions{SectionIDs: []string{"89"}, MaxPages: 1})

	require.Equal(t, []int64{100, 101}, h.posts.ids())
	require.Zero(t, h.fetcher.count(testURLs.Detail("1")))
}

func TestWalkAllStickyPageCoupledStopsSection(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	h.listing(t, "89", 1, sticky("1"), sticky("2"))
	h.listing(t, "89", 2, post("100"))

	res := walk(t, h, CrawlOptions{SectionIDs: []string{"89"}, MaxPages: 5})
	require.Zero(t, res.Persisted)
	require.Equal(t, 1, res.Pages)
}

func TestWalkAllStickyPageDecoupledContinues(t *testing.T) {
	h := newHarness(t, StickyDecoupled)
	h.listing(t, "89", 1, sticky("1"), sticky("2"))
	h.listing(t, "89", 2, post("100"))
	h.listing(t, "89", 3)

	res := walk(t, h, CrawlOptions{SectionIDs: []string{"89"}, MaxPages: 5})
	require.Equal(t, 1, res.Persisted)
	require.Equal(t, []int64{100}, h.posts.ids())
	require.Equal(t, 3, res.Pages)
}

func TestWalkDedupAcrossPages(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	h.listing(t, "89", 1, post("100"), post("101"))
	h.listing(t, "89", 2, post("101"), post("102"))

	res := walk(t, h, CrawlOptions{SectionIDs: []string{"89"}, MaxPages: 2})
	require.Equal(t, 3, res.Persisted)
	require.Equal(t, 1, h.fetcher.count(testURLs.Detail("101")))
}

func TestWalkOverwriteDedupAcrossPages(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	h.listing(t, "89", 1, post("100"), post("101"))
	h.listing(t, "89", 2, post("101"), post("102"))

	walk(t, h, CrawlOptions{SectionIDs: []string{"89"}, MaxPages: 2})
	res := walk(t, h, CrawlOptions{SectionIDs: []string{"89"}, MaxPages: 2, Overwrite: true})

	require.Equal(t, 3, res.Persisted, "overwrite reprocesses every page but each id once")
	require.Equal(t, 2, h.fetcher.count(testURLs.Detail("101")))
	require.Equal(t, 2, res.Pages)
}

func TestWalkOverwriteIgnoresExistingIDs(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	h.posts.failIDs = errors.New("must not be read")
	h.listing(t, "89", 1, post("100"))

	res := walk(t, h, CrawlOptions{SectionIDs: []string{"89"}, MaxPages: 1, Overwrite: true})
	require.Equal(t, 1, res.Persisted)
	require.Equal(t, 1, res.DetailFetches)
}

func TestWalkDropsMalformedIDs(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	noID := post("")
	noID.URL = "https://bbs.example.com/no-id"
	h.listing(t, "89", 1, post("100"), noID, post("abc"), post("101"))

	stats, err := h.walker.Walk(context.Background(), CrawlOptions{SectionIDs: []string{"89"}, MaxPages: 1})
	require.NoError(t, err)
	require.Equal(t, []int64{100, 101}, h.posts.ids())
	require.Equal(t, 2, stats.Persisted)
	require.Equal(t, 1, stats.NoIDDropped)
}

func TestWalkListingFailureSkipsSection(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	h.fetcher.fail[testURLs.Listing("2", 1)] = errors.New("connection refused")
	h.listing(t, "89", 1, post("100"))

	res := walk(t, h, CrawlOptions{SectionIDs: []string{"2", "89"}, MaxPages: 1})
	require.Equal(t, []string{"2"}, res.FailedSections)
	require.Equal(t, []int64{100}, h.posts.ids())
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ListingPagesTotal.WithLabelValues("2", "fetch_failed")))
}

func TestWalkDetailFailureDegradesRecord(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	h.listing(t, "89", 1, post("100"))
	h.fetcher.fail[testURLs.Detail("100")] = errors.New("timeout")

	stats, err := h.walker.Walk(context.Background(), CrawlOptions{SectionIDs: []string{"89"}, MaxPages: 1})
	require.NoError(t, err)
	require.Equal(t, 1, stats.DetailFailures)
	row := h.posts.rows[100]
	require.Empty(t, row.Content)
	require.Equal(t, "[]", row.ImagesJSON)
}

func TestWalkPersistFailureAborts(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	h.posts.failWrites = errors.New("deadlock")
	h.listing(t, "89", 1, post("100"))
	h.listing(t, "90", 1, post("200"))

	_, err := h.walker.Walk(context.Background(), CrawlOptions{SectionIDs: []string{"89", "90"}, MaxPages: 1})
	require.ErrorIs(t, err, ErrPersist)
	require.Zero(t, h.fetcher.count(testURLs.Listing("90", 1)))
}

func TestWalkIndexFailureAborts(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	h.posts.failIDs = errors.New("no such table")

	_, err := h.walker.Walk(context.Background(), CrawlOptions{SectionIDs: []string{"89"}, MaxPages: 1})
	require.ErrorIs(t, err, ErrIndexLoad)
	require.True(t, strings.Contains(err.Error(), "no such table"))
}

func TestWalkHonoursCancellation(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	h.listing(t, "89", 1, post("100"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.walker.Walk(ctx, CrawlOptions{SectionIDs: []string{"89"}, MaxPages: 1})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, h.posts.ids())
}

func TestWalkMultipleSections(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	h.listing(t, "89", 1, post("100"))
	h.listing(t, "89", 2)
	h.listing(t, "90", 1, post("200"), post("100"))
	h.listing(t, "90", 2)

	res := walk(t, h, CrawlOptions{SectionIDs: []string{"89", "90"}, MaxPages: 3})
	require.Equal(t, []int64{100, 200}, h.posts.ids())
	require.Equal(t, 2, res.Persisted)
	require.Equal(t, "90", h.posts.rows[200].SectionID)
}

func TestWalkCountsOnlyAttemptedDetailFetches(t *testing.T) {
	h := newHarness(t, StickyCoupled)
	h.listing(t, "89", 1, post("100"), post("101"))
	withURL := func(id string) entity.Post {
		p := post(id)
		p.URL = testURLs.Detail(id)
		return p
	}
	// 102 has an id but no link, so there is no detail page to fetch.
	body, err := json.Marshal([]entity.Post{withURL("100"), withURL("101"), post("102")})
	require.NoError(t, err)
	h.fetcher.pages[testURLs.Listing("89", 1)] = body
	h.fetcher.fail[testURLs.Detail("101")] = errors.New("timeout")

	stats, err := h.walker.Walk(context.Background(), CrawlOptions{SectionIDs: []string{"89"}, MaxPages: 1})
	require.NoError(t, err)
	require.Equal(t, 2, stats.DetailFetches)
	require.Equal(t, 1, stats.DetailFailures)
	require.Equal(t, 3, stats.Persisted)
	require.Zero(t, h.fetcher.count(testURLs.Detail("102")))
	require.Equal(t, "[]", h.posts.rows[102].ImagesJSON)
}
