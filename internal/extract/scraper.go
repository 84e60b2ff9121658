package extract

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/university-rankings/internal/fetcher"
)

// Waiter enforces the politeness delay before each request.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// PageArchiver keeps a copy of every fetched page.
type PageArchiver interface {
	Archive(ctx context.Context, code string, page int, doc *goquery.Document) error
}

// Scraper drives an Extractor over its pages.
type Scraper struct {
	fetcher   fetcher.Fetcher
	overrides map[string]fetcher.Fetcher
	limiter   Waiter
	archiver  PageArchiver
	logger    *zap.Logger
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithFetcherFor routes one source through a different fetcher.
func WithFetcherFor(code string, f fetcher.Fetcher) Option {
	return func(s *Scraper) {
		s.overrides[code] = f
	}
}

// WithLimiter sets the politeness limiter.
func WithLimiter(w Waiter) Option {
	return func(s *Scraper) {
		s.limiter = w
	}
}

// WithArchiver stores every fetched page.
func WithArchiver(a PageArchiver) Option {
	return func(s *Scraper) {
		s.archiver = a
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scraper) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScraper builds a Scraper around the default fetcher.
func NewScraper(f fetcher.Fetcher, opts ...Option) *Scraper {
	s := &Scraper{
		fetcher:   f,
		overrides: map[string]fetcher.Fetcher{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape fetches and extracts every page of ex. A failure on the first page
// fails the source; a later page that fails or has no rows ends pagination
// and keeps what was collected.
func (s *Scraper) Scrape(ctx context.Context, ex Extractor) (Result, error) {
	var total Result
	f := s.fetcherFor(ex.Code())
	logger := s.logger.With(zap.String("source", ex.Code()))

	for i, url := range ex.Pages() {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx, url); err != nil {
				return total, fmt.Errorf("wait for %s: %w", url, err)
			}
		}
		doc, err := f.Fetch(ctx, url)
		if err != nil {
			if i == 0 {
				return Result{}, err
			}
			logger.Warn("stopping pagination after fetch failure", zap.Int("page", i+1), zap.Error(err))
			break
		}
		if s.archiver != nil {
			if err := s.archiver.Archive(ctx, ex.Code(), i+1, doc); err != nil {
				logger.Warn("archive page failed", zap.Int("page", i+1), zap.Error(err))
			}
		}
		page := ex.Extract(doc)
		logger.Debug("page extracted",
			zap.Int("page", i+1),
			zap.Int("rows", page.Rows),
			zap.Int("entries", len(page.Entries)),
			zap.Int("skipped", len(page.Skipped)),
		)
		for _, skip := range page.Skipped {
			logger.Info("row skipped", zap.Int("page", i+1), zap.Int("row", skip.Row), zap.String("reason", skip.Reason))
		}
		if page.Rows == 0 {
			break
		}
		total.merge(page)
	}
	return total, nil
}

func (s *Scraper) fetcherFor(code string) fetcher.Fetcher {
	if f, ok := s.overrides[code]; ok && f != nil {
		return f
	}
	return s.fetcher
}
