package extract

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/university-rankings/internal/normalize"
	"github.com/JakeFAU/university-rankings/internal/ranking"
)

const (
	arwuURL     = "https://www.shanghairanking.com/rankings/arwu/2024"
	arwuMaxRows = 500
	arwuMinCols = 3
)

var arwuRows = Chain{
	TableRows("table.ranking-table"),
	TableRows("table.rk-table"),
	TableRows("table"),
}

// ARWU extracts the Academic Ranking of World Universities table. Columns are
// rank, institution, score and optionally country.
type ARWU struct {
	url string
}

// NewARWU returns the ARWU extractor.
func NewARWU() *ARWU {
	return &ARWU{url: arwuURL}
}

// Code implements Extractor.
func (*ARWU) Code() string { return "arwu" }

// Pages implements Extractor.
func (a *ARWU) Pages() []string { return []string{a.url} }

// Extract implements Extractor.
func (*ARWU) Extract(doc *goquery.Document) Result {
	return ParseRows(arwuRows.Find(doc.Selection), arwuMaxRows, parseARWURow)
}

func parseARWURow(_ int, row *goquery.Selection) (ranking.RawEntry, error) {
	cells := row.Find("td")
	if cells.Length() < arwuMinCols {
		return ranking.RawEntry{}, fmt.Errorf("expected at least %d cells, got %d", arwuMinCols, cells.Length())
	}
	cell := func(i int) string {
		return normalize.CleanText(cells.Eq(i).Text())
	}
	name := cell(1)
	if name == "" {
		return ranking.RawEntry{}, errMissingName
	}
	entry := ranking.RawEntry{
		InstitutionName: name,
		Country:         ranking.UnknownCountry,
		Rank:            normalize.Rank(cell(0)),
		Score:           normalize.Score(cell(2)),
		SourceURL:       href(row.Find("a").First()),
	}
	switch {
	case cells.Length() > arwuMinCols && cell(3) != "":
		entry.Country = cell(3)
	default:
		if alt, ok := row.Find("img.flag").First().Attr("alt"); ok && normalize.CleanText(alt) != "" {
			entry.Country = normalize.CleanText(alt)
		}
	}
	if entry.Score != nil {
		entry.Metrics = map[ranking.Metric]float64{ranking.MetricResearchImpact: *entry.Score}
	}
	return entry, nil
}
