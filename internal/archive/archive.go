// Package archive keeps raw copies of fetched ranking pages so extraction
// changes can be replayed against what the sites actually served.
package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/university-rankings/internal/ranking"
)

// BlobStore persists objects and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

const contentTypeHTML = "text/html; charset=utf-8"

// Archiver writes pages to prefix/<source>/<stamp>/page-NNN.html. All pages
// of one source run share the stamp taken when page 1 is archived.
type Archiver struct {
	store  BlobStore
	prefix string
	clock  ranking.Clock
	logger *zap.Logger

	mu     sync.Mutex
	stamps map[string]string
}

// New builds an Archiver.
func New(store BlobStore, prefix string, clock ranking.Clock, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		clock:  clock,
		logger: logger,
		stamps: make(map[string]string),
	}
}

// Archive stores the rendered HTML of doc.
func (a *Archiver) Archive(ctx context.Context, code string, page int, doc *goquery.Document) error {
	html, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	key := a.Key(code, page)
	uri, err := a.store.PutObject(ctx, key, contentTypeHTML, strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	a.logger.Debug("page archived", zap.String("source", code), zap.Int("page", page), zap.String("uri", uri))
	return nil
}

// Key returns the object path for a page, starting a new stamp on page 1.
func (a *Archiver) Key(code string, page int) string {
	a.mu.Lock()
	stamp, ok := a.stamps[code]
	if page <= 1 || !ok {
		stamp = a.clock.Now().UTC().Format("20060102T150405Z")
		a.stamps[code] = stamp
	}
	a.mu.Unlock()
	return path.Join(a.prefix, code, stamp, fmt.Sprintf("page-%03d.html", page))
}

