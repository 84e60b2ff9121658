package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/university-rankings/internal/normalize"
	"github.com/JakeFAU/university-rankings/internal/ranking"
)

const (
	nicheURL     = "https://www.niche.com/colleges/search/best-colleges/"
	nicheMaxRows = 100
)

var (
	nicheRows = Chain{CSS("div.search-result"), CSS("li.search-result"), CSS("article.search-result")}
	nicheName = Chain{
		CSS("h2.search-result__title"),
		CSS("a.search-result__link"),
		CSS("h2"),
		CSS("a"),
	}
	nicheGrade = Chain{CSS("div.niche__grade"), CSS("span.search-result-grade"), CSS("div.overall-grade")}
)

// Niche extracts Niche college search results. Niche publishes letter grades,
// so the score is the grade's numeric value and the rank is list position.
type Niche struct {
	url string
}

// NewNiche returns the Niche extractor.
func NewNiche() *Niche {
	return &Niche{url: nicheURL}
}

// Code implements Extractor.
func (*Niche) Code() string { return "niche" }

// Pages implements Extractor.
func (n *Niche) Pages() []string { return []string{n.url} }

// Extract implements Extractor.
func (*Niche) Extract(doc *goquery.Document) Result {
	return ParseRows(nicheRows.Find(doc.Selection), nicheMaxRows, parseNicheResult)
}

func parseNicheResult(position int, result *goquery.Selection) (ranking.RawEntry, error) {
	nameEl := nicheName.First(result)
	name := normalize.CleanText(nameEl.Text())
	if name == "" {
		return ranking.RawEntry{}, errMissingName
	}
	entry := ranking.RawEntry{
		InstitutionName: name,
		Country:         usaCountry,
		Rank:            position,
		SourceURL:       rowLink(result, nameEl),
	}
	if text, ok := nicheGrade.Text(result); ok {
		entry.Score = normalize.Grade(text)
	}
	return entry, nil
}
