// Package extract turns ranking pages into canonical records. Each source has
// an Extractor whose selectors are ordered fallback chains, so markup changes
// degrade to skipped rows rather than failed runs.
package extract

import (
	"errors"
	"fmt"
	"sort"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/university-rankings/internal/ranking"
)

// Extractor parses one source's pages.
type Extractor interface {
	Code() string
	// Pages lists the URLs to fetch, in order.
	Pages() []string
	Extract(doc *goquery.Document) Result
}

// Skip records a row that could not be turned into a record.
type Skip struct {
	// Row is the 1-based position among the rows located on the page.
	Row    int
	Reason string
}

// Result is what one page (or a whole source) yielded.
type Result struct {
	// Rows is how many candidate rows were located.
	Rows    int
	Entries []ranking.RawEntry
	Skipped []Skip
}

func (r *Result) merge(other Result) {
	r.Rows += other.Rows
	r.Entries = append(r.Entries, other.Entries...)
	r.Skipped = append(r.Skipped, other.Skipped...)
}

var errMissingName = errors.New("institution name not found")

// RowParser turns one located row into a record.
type RowParser func(position int, row *goquery.Selection) (ranking.RawEntry, error)

// ParseRows applies parse to at most limit rows. A row that errors, panics or
// fails validation is skipped; the rest continue.
func ParseRows(rows *goquery.Selection, limit int, parse RowParser) Result {
	var res Result
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		if limit > 0 && i >= limit {
			return false
		}
		res.Rows++
		position := i + 1
		entry, err := parseRow(position, row, parse)
		if err == nil {
			err = entry.Validate()
		}
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Row: position, Reason: err.Error()})
			return true
		}
		res.Entries = append(res.Entries, entry)
		return true
	})
	return res
}

func parseRow(position int, row *goquery.Selection, parse RowParser) (entry ranking.RawEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("row parser panic: %v", r)
		}
	}()
	return parse(position, row)
}

// Registry maps source codes to extractors.
type Registry struct {
	extractors map[string]Extractor
	order      []string
}

// NewRegistry builds a registry holding the given extractors, in order.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{extractors: map[string]Extractor{}}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// DefaultRegistry holds every built-in extractor.
func DefaultRegistry() *Registry {
	return NewRegistry(NewQS(), NewARWU(), NewUSNews(), NewForbes(), NewNiche())
}

// Register adds or replaces an extractor.
func (r *Registry) Register(e Extractor) {
	if _, ok := r.extractors[e.Code()]; !ok {
		r.order = append(r.order, e.Code())
	}
	r.extractors[e.Code()] = e
}

// Resolve returns the extractor for code.
func (r *Registry) Resolve(code string) (Extractor, error) {
	if e, ok := r.extractors[code]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("no extractor registered for %q", code)
}

// Has reports whether code has an extractor.
func (r *Registry) Has(code string) bool {
	_, ok := r.extractors[code]
	return ok
}

// Codes returns registered codes in registration order.
func (r *Registry) Codes() []string {
	return append([]string(nil), r.order...)
}

// SortedCodes returns registered codes alphabetically.
func (r *Registry) SortedCodes() []string {
	codes := r.Codes()
	sort.Strings(codes)
	return codes
}
