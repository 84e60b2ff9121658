// Package headless fetches JavaScript-rendered ranking pages with headless Chrome.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/university-rankings/internal/fetcher"
)

const defaultNavTimeout = 45 * time.Second

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// WaitSelector must be present before the DOM is captured.
	WaitSelector string
	// Settle is extra time given to client-side rendering after WaitSelector.
	Settle time.Duration
}

// Fetcher renders pages in a shared Chrome allocator.
type Fetcher struct {
	cfg         Config
	headers     http.Header
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewChromedp creates a headless fetcher. Chrome is started lazily on the
// first Fetch.
func NewChromedp(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.WaitSelector == "" {
		cfg.WaitSelector = "body"
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	headers := fetcher.BrowserHeaders(cfg.UserAgent)
	return &Fetcher{
		cfg:         cfg,
		headers:     headers,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close shuts down the browser allocator.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates to url and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	if err := f.acquire(ctx); err != nil {
		return nil, fetcher.Classify(url, err)
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, f.navTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := &responseMeta{}
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, err := f.render(taskCtx, url)
	if err != nil {
		return nil, fetcher.Classify(url, err)
	}
	status := meta.statusOrOK()
	f.logger.Debug("page rendered",
		zap.String("url", url),
		zap.Int("status", status),
		zap.Duration("dur", time.Since(start)),
	)
	if !fetcher.Success(status) {
		return nil, fetcher.StatusFailure(url, status)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fetcher.Classify(url, fmt.Errorf("parse html: %w", err))
	}
	return doc, nil
}

func (f *Fetcher) render(ctx context.Context, url string) (string, error) {
	var html string
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady(f.cfg.WaitSelector, chromedp.ByQuery),
		chromedp.Sleep(f.cfg.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if ua := f.headers.Get("User-Agent"); ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		extra := f.headers.Clone()
		extra.Del("User-Agent")
		if len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(extra)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

// responseMeta remembers the status of the main document response.
type responseMeta struct {
	mu     sync.Mutex
	status int
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	if m.status == 0 {
		m.status = int(resp.Response.Status)
	}
	m.mu.Unlock()
}

func (m *responseMeta) statusOrOK() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == 0 {
		return http.StatusOK
	}
	return m.status
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		headers[key] = strings.Join(values, ", ")
	}
	return headers
}
