// Package fetcher defines the page retrieval contract and its failure kinds.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Kind classifies why a fetch failed.
type Kind string

// Failure kinds.
const (
	KindTimeout      Kind = "timeout"
	KindRequestError Kind = "request_error"
	KindHTTPStatus   Kind = "http_status"
)

const (
	// DefaultTimeout bounds a single page request.
	DefaultTimeout = 15 * time.Second
	// DefaultUserAgent mimics a desktop browser.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Fetcher retrieves a page and parses it into a document. Errors are always
// *Failure values.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// Failure describes a source-level fetch error.
type Failure struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", f.URL, f.StatusCode)
	case KindTimeout:
		return fmt.Sprintf("fetch %s: timed out", f.URL)
	default:
		if f.Err != nil {
			return fmt.Sprintf("fetch %s: %v", f.URL, f.Err)
		}
		return fmt.Sprintf("fetch %s: request failed", f.URL)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Classify wraps err as a Failure, detecting timeouts.
func Classify(url string, err error) *Failure {
	var existing *Failure
	if errors.As(err, &existing) {
		return existing
	}
	kind := KindRequestError
	if IsTimeout(err) {
		kind = KindTimeout
	}
	return &Failure{Kind: kind, URL: url, Err: err}
}

// StatusFailure reports a non-2xx response.
func StatusFailure(url string, status int) *Failure {
	return &Failure{
		Kind:       KindHTTPStatus,
		URL:        url,
		StatusCode: status,
		Err:        fmt.Errorf("status %d %s", status, http.StatusText(status)),
	}
}

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// BrowserHeaders returns the request headers sent with every page request.
func BrowserHeaders(userAgent string) http.Header {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	return h
}

// Success reports whether status is 2xx.
func Success(status int) bool {
	return status >= 200 && status < 300
}
