// Package collyfetcher implements fetcher.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/university-rankings/internal/fetcher"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher retrieves static pages with a Colly collector.
type Fetcher struct {
	cfg           Config
	headers       http.Header
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type page struct {
	status int
	body   []byte
	err    error
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = fetcher.DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = fetcher.DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		headers:       fetcher.BrowserHeaders(cfg.UserAgent),
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch performs a single GET and parses the body. Non-2xx responses are
// reported as fetcher.KindHTTPStatus failures.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	var p page
	collector := f.buildCollector(&p)
	start := time.Now()
	if err := f.runCollector(ctx, collector, url, &p); err != nil {
		return nil, fetcher.Classify(url, err)
	}
	f.logger.Debug("page fetched",
		zap.String("url", url),
		zap.Int("status", p.status),
		zap.Int("bytes", len(p.body)),
		zap.Duration("dur", time.Since(start)),
	)
	if !fetcher.Success(p.status) {
		return nil, fetcher.StatusFailure(url, p.status)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return nil, fetcher.Classify(url, fmt.Errorf("parse html: %w", err))
	}
	return doc, nil
}

func (f *Fetcher) buildCollector(p *page) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	f.configureCollectorHooks(collector, p)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, p *page) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range f.headers {
			r.Headers.Del(key)
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		p.status = r.StatusCode
		p.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			p.status = r.StatusCode
		}
		p.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, p *page) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if p.err != nil {
			return fmt.Errorf("colly response failed: %w", p.err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
}
