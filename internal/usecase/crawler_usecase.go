package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/user/forum-crawler/internal/entity"
	"github.com/user/forum-crawler/internal/repository"
	"github.com/user/forum-crawler/pkg/metrics"
)

// Sticky policies decide whether a page holding only sticky posts ends a section.
const (
	// StickyCoupled filters sticky posts before the emptiness check, so an
	// all-sticky page stops the section.
	StickyCoupled = "coupled"
	// StickyDecoupled judges emptiness on the raw page and computes the delta
	// on non-sticky posts only; an all-sticky page moves on to the next page.
	StickyDecoupled = "decoupled"
)

var errSectionAborted = errors.New("section aborted")

// CrawlOptions parameterizes one walk.
type CrawlOptions struct {
	SectionIDs []string
	MaxPages   int
	Delay      time.Duration
	Overwrite  bool
}

// WalkerConfig holds the static settings of a SectionWalker.
type WalkerConfig struct {
	URLs           SiteURLs
	StickyPolicy   string
	DetailDelayMin time.Duration
	DetailDelayMax time.Duration
}

// SectionWalker pages through forum sections until it runs out of new posts.
type SectionWalker struct {
	cfg       WalkerConfig
	fetcher   repository.Fetcher
	extractor repository.Extractor
	posts     repository.PostRepository
	enricher  *DetailEnricher
	writer    *BatchWriter
	metrics   *metrics.Metrics
	logger    *zap.Logger
	sleep     func(context.Context, time.Duration) error
}

// NewSectionWalker creates a SectionWalker.
func NewSectionWalker(
	cfg WalkerConfig,
	fetcher repository.Fetcher,
	extractor repository.Extractor,
	posts repository.PostRepository,
	enricher *DetailEnricher,
	writer *BatchWriter,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SectionWalker {
	if cfg.StickyPolicy == "" {
		cfg.StickyPolicy = StickyCoupled
	}
	return &SectionWalker{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		posts:     posts,
		enricher:  enricher,
		writer:    writer,
		metrics:   m,
		logger:    logger.Named("walker"),
		sleep:     sleepContext,
	}
}

// walkState is shared by all sections of one walk.
type walkState struct {
	opts  CrawlOptions
	index *IDIndex            // nil in overwrite mode
	seen  map[string]struct{} // ids processed this run, overwrite mode only
	stats *entity.CrawlStats
}

// Walk crawls every section in opts. Listing fetch failures abort only their
// section; store failures abort the whole walk.
func (w *SectionWalker) Walk(ctx context.Context, opts CrawlOptions) (*entity.CrawlStats, error) {
	st := &walkState{opts: opts, seen: make(map[string]struct{}), stats: &entity.CrawlStats{}}
	if !opts.Overwrite {
		index, err := LoadIDIndex(ctx, w.posts)
		if err != nil {
			return st.stats, err
		}
		st.index = index
		w.logger.Info("existing ids loaded", zap.Int("count", index.Len()))
	}

	for _, fid := range opts.SectionIDs {
		if err := ctx.Err(); err != nil {
			return st.stats, err
		}
		st.stats.Sections++
		err := w.walkSection(ctx, fid, st)
		switch {
		case errors.Is(err, errSectionAborted):
			st.stats.FailedSections = append(st.stats.FailedSections, fid)
		case err != nil:
			return st.stats, err
		}
	}
	w.logger.Info("walk finished",
		zap.Int("sections", st.stats.Sections),
		zap.Int("pages", st.stats.Pages),
		zap.Int("new", st.stats.NewRecords),
		zap.Int("persisted", st.stats.Persisted),
		zap.Strings("failed_sections", st.stats.FailedSections),
	)
	return st.stats, nil
}

func (w *SectionWalker) walkSection(ctx context.Context, fid string, st *walkState) error {
	log := w.logger.With(zap.String("fid", fid))
	for page := 1; page <= st.opts.MaxPages; page++ {
		if page > 1 {
			if err := w.sleep(ctx, st.opts.Delay); err != nil {
				return err
			}
		}
		more, err := w.walkPage(ctx, fid, page, st, log.With(zap.Int("page", page)))
		if err != nil || !more {
			return err
		}
	}
	log.Info("page budget exhausted", zap.Int("max_pages", st.opts.MaxPages))
	return nil
}

// walkPage processes one listing page and reports whether the section continues.
func (w *SectionWalker) walkPage(ctx context.Context, fid string, page int, st *walkState, log *zap.Logger) (bool, error) {
	url := w.cfg.URLs.Listing(fid, page)
	res, err := w.fetcher.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.Warn("listing fetch failed, skipping section", zap.String("url", url), zap.Error(err))
		w.metrics.ListingPagesTotal.WithLabelValues(fid, "fetch_failed").Inc()
		return false, fmt.Errorf("%w: %s: %w", errSectionAborted, fid, err)
	}
	st.stats.Pages++

	records := w.extractor.ExtractListing(res.Body, fid)
	st.stats.Extracted += len(records)
	usable := make([]entity.Post, 0, len(records))
	for _, r := range records {
		if r.IsSticky {
			st.stats.StickyDropped++
			continue
		}
		usable = append(usable, r)
	}

	empty := len(usable) == 0
	if w.cfg.StickyPolicy == StickyDecoupled {
		empty = len(records) == 0
	}
	if empty {
		log.Info("page has no posts, section done")
		w.metrics.ListingPagesTotal.WithLabelValues(fid, "empty").Inc()
		return false, nil
	}

	candidates, idsOnPage := w.withIDs(usable, st.stats)
	var toProcess []entity.Post
	if st.opts.Overwrite {
		for _, p := range candidates {
			if _, dup := st.seen[p.ID]; !dup {
				toProcess = append(toProcess, p)
			}
		}
	} else {
		newIDs := st.index.Delta(idsOnPage)
		if len(newIDs) == 0 {
			if len(usable) == 0 {
				log.Info("page holds only sticky posts, continuing")
				w.metrics.ListingPagesTotal.WithLabelValues(fid, "ok").Inc()
				return true, nil
			}
			log.Info("no new posts on page, section done", zap.Int("posts", len(idsOnPage)))
			w.metrics.ListingPagesTotal.WithLabelValues(fid, "exhausted").Inc()
			return false, nil
		}
		fresh := make(map[string]struct{}, len(newIDs))
		for _, id := range newIDs {
			fresh[id] = struct{}{}
		}
		for _, p := range candidates {
			if _, ok := fresh[p.ID]; ok {
				toProcess = append(toProcess, p)
			}
		}
	}
	log.Info("page parsed", zap.Int("posts", len(records)), zap.Int("ids", len(idsOnPage)), zap.Int("to_process", len(toProcess)))

	if err := w.process(ctx, toProcess, st, log); err != nil {
		return false, err
	}

	if st.index != nil {
		st.index.AddAll(idsOnPage)
	}
	for _, p := range toProcess {
		st.seen[p.ID] = struct{}{}
	}
	w.metrics.ListingPagesTotal.WithLabelValues(fid, "ok").Inc()
	return true, nil
}

// withIDs drops posts without an id and keeps the first post of each id.
func (w *SectionWalker) withIDs(posts []entity.Post, stats *entity.CrawlStats) ([]entity.Post, []string) {
	seen := make(map[string]struct{}, len(posts))
	out := make([]entity.Post, 0, len(posts))
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		if p.ID == "" {
			stats.NoIDDropped++
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
		ids = append(ids, p.ID)
	}
	return out, ids
}

// process enriches posts one by one and commits them as one batch.
func (w *SectionWalker) process(ctx context.Context, posts []entity.Post, st *walkState, log *zap.Logger) error {
	if len(posts) == 0 {
		return nil
	}
	for i := range posts {
		if i > 0 {
			if err := w.sleep(ctx, w.detailDelay()); err != nil {
				return err
			}
		}
		log.Debug("fetching detail", zap.Int("n", i+1), zap.Int("of", len(posts)), zap.String("id", posts[i].ID))
		switch w.enricher.Enrich(ctx, &posts[i]) {
		case EnrichOK:
			st.stats.DetailFetches++
		case EnrichFailed:
			st.stats.DetailFetches++
			st.stats.DetailFailures++
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	n, err := w.writer.Write(ctx, posts, st.opts.Overwrite)
	if err != nil {
		return err
	}
	st.stats.NewRecords += len(posts)
	st.stats.Persisted += n
	return nil
}

func (w *SectionWalker) detailDelay() time.Duration {
	lo, hi := w.cfg.DetailDelayMin, w.cfg.DetailDelayMax
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
