package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/university-rankings/internal/normalize"
	"github.com/JakeFAU/university-rankings/internal/ranking"
)

const (
	forbesURL     = "https://www.forbes.com/top-colleges/"
	forbesMaxRows = 100
)

var (
	forbesRows = Chain{
		CSS("div.college-entry"),
		CSS("tr.table-row"),
		CSS("article.list-item"),
		TableRows("table"),
	}
	forbesName  = Chain{CSS("h3"), CSS("a.name"), CSS("td.name"), CSS("a")}
	forbesScore = Chain{CSS("span.score"), CSS("td.score")}
	forbesRank  = Chain{CSS("span.rank"), CSS("td.rank")}
)

// Forbes extracts Forbes Top Colleges.
type Forbes struct {
	url string
}

// NewForbes returns the Forbes extractor.
func NewForbes() *Forbes {
	return &Forbes{url: forbesURL}
}

// Code implements Extractor.
func (*Forbes) Code() string { return "forbes" }

// Pages implements Extractor.
func (f *Forbes) Pages() []string { return []string{f.url} }

// Extract implements Extractor.
func (*Forbes) Extract(doc *goquery.Document) Result {
	return ParseRows(forbesRows.Find(doc.Selection), forbesMaxRows, parseForbesRow)
}

func parseForbesRow(position int, row *goquery.Selection) (ranking.RawEntry, error) {
	nameEl := forbesName.First(row)
	name := normalize.CleanText(nameEl.Text())
	if name == "" {
		return ranking.RawEntry{}, errMissingName
	}
	entry := ranking.RawEntry{
		InstitutionName: name,
		Country:         usaCountry,
		Rank:            position,
		SourceURL:       rowLink(row, nameEl),
	}
	if text, ok := forbesRank.Text(row); ok {
		entry.Rank = normalize.PositionalRank(text, "#.", position)
	}
	if text, ok := forbesScore.Text(row); ok {
		entry.Score = normalize.Score(text)
	}
	return entry, nil
}

// rowLink prefers the name element's own href, then the row's first link.
func rowLink(row, nameEl *goquery.Selection) string {
	if goquery.NodeName(nameEl) == "a" {
		return href(nameEl)
	}
	return href(row.Find("a").First())
}
