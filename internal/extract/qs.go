package extract

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/university-rankings/internal/normalize"
	"github.com/JakeFAU/university-rankings/internal/ranking"
)

const (
	qsBaseURL  = "https://www.topuniversities.com/university-rankings/world-university-rankings/2025"
	qsMaxPages = 5
)

var (
	qsRows    = Chain{CSS("tr.ranking-row"), CSS("div.ranking-card"), TableRows("table")}
	qsRank    = Chain{CSS("span.ranking-rank"), CSS("td.rank"), CSS("div.rank")}
	qsName    = Chain{CSS("a.ranking-link"), CSS("a.uni-link"), CSS("h2"), CSS("a")}
	qsScore   = Chain{CSS("span.ranking-score"), CSS("td.score"), CSS("div.score")}
	qsCountry = Chain{CSS("span.country"), CSS("div.location"), CSS("span.location")}

	// Column codes QS uses for its indicator cells.
	qsMetricCodes = map[ranking.Metric]string{
		ranking.MetricAcademicReputation:     "AR",
		ranking.MetricEmployerReputation:     "ER",
		ranking.MetricFacultyStudentRatio:    "FSR",
		ranking.MetricInternationalDiversity: "ID",
	}
	qsMetrics = buildQSMetricChains()
)

func buildQSMetricChains() map[ranking.Metric]Chain {
	chains := make(map[ranking.Metric]Chain, len(qsMetricCodes))
	for metric, code := range qsMetricCodes {
		chains[metric] = Chain{
			CSS("span.metric-" + code),
			CSS(fmt.Sprintf(`td[data-metric=%q]`, code)),
		}
	}
	return chains
}

// QS extracts the QS World University Rankings.
type QS struct {
	baseURL string
	pages   int
}

// NewQS returns the QS extractor.
func NewQS() *QS {
	return &QS{baseURL: qsBaseURL, pages: qsMaxPages}
}

// Code implements Extractor.
func (*QS) Code() string { return "qs" }

// Pages implements Extractor.
func (q *QS) Pages() []string {
	urls := make([]string, 0, q.pages)
	for p := 1; p <= q.pages; p++ {
		urls = append(urls, fmt.Sprintf("%s?page=%d", q.baseURL, p))
	}
	return urls
}

// Extract implements Extractor. Rows without a rank element are skipped.
func (q *QS) Extract(doc *goquery.Document) Result {
	return ParseRows(qsRows.Find(doc.Selection), 0, q.parseRow)
}

func (*QS) parseRow(_ int, row *goquery.Selection) (ranking.RawEntry, error) {
	rankText, ok := qsRank.Text(row)
	if !ok {
		return ranking.RawEntry{}, fmt.Errorf("rank element not found")
	}
	nameEl := qsName.First(row)
	name := normalize.CleanText(nameEl.Text())
	if name == "" {
		return ranking.RawEntry{}, errMissingName
	}
	entry := ranking.RawEntry{
		InstitutionName: name,
		Country:         ranking.UnknownCountry,
		Rank:            normalize.Rank(rankText),
		SourceURL:       href(nameEl),
	}
	if scoreText, ok := qsScore.Text(row); ok {
		entry.Score = normalize.Score(scoreText)
	}
	if country, ok := qsCountry.Text(row); ok && country != "" {
		entry.Country = country
	}
	for metric, chain := range qsMetrics {
		text, ok := chain.Text(row)
		if !ok {
			continue
		}
		if v := normalize.Score(text); v != nil {
			if entry.Metrics == nil {
				entry.Metrics = map[ranking.Metric]float64{}
			}
			entry.Metrics[metric] = *v
		}
	}
	return entry, nil
}
