package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/university-rankings/internal/ranking"
)

func loadDoc(t *testing.T, name string) *goquery.Document {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	defer f.Close()
	doc, err := goquery.NewDocumentFromReader(f)
	require.NoError(t, err)
	return doc
}

func docFromString(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestQSExtract(t *testing.T) {
	t.Parallel()

	res := NewQS().Extract(loadDoc(t, "qs.html"))
	require.Equal(t, 5, res.Rows)

	want := []ranking.RawEntry{
		{
			InstitutionName: "Massachusetts Institute of Technology (MIT)",
			Country:         "United States",
			Rank:            1,
			Score:           ranking.Float(100),
			SourceURL:       "/universities/massachusetts-institute-technology-mit",
			Metrics: map[ranking.Metric]float64{
				ranking.MetricAcademicReputation: 100,
				ranking.MetricEmployerReputation: 99.5,
			},
		},
		{
			InstitutionName: "Imperial College London",
			Country:         "United Kingdom",
			Rank:            2,
			Score:           ranking.Float(98.5),
			SourceURL:       "/universities/imperial-college-london",
		},
		{
			InstitutionName: "University of Somewhere",
			Country:         ranking.UnknownCountry,
			Rank:            101,
			SourceURL:       "/universities/somewhere",
		},
	}
	if diff := cmp.Diff(want, res.Entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, res.Skipped, 2)
	require.Equal(t, 4, res.Skipped[0].Row)
	require.Contains(t, res.Skipped[0].Reason, "rank")
	require.Equal(t, 5, res.Skipped[1].Row)
	require.Equal(t, errMissingName.Error(), res.Skipped[1].Reason)
}

func TestQSExtractCardLayout(t *testing.T) {
	t.Parallel()

	doc := docFromString(t, `
<div class="ranking-card">
  <div class="rank">3</div>
  <h2>University of Oxford</h2>
  <div class="score">96.9</div>
</div>`)
	res := NewQS().Extract(doc)
	require.Len(t, res.Entries, 1)
	require.Equal(t, "University of Oxford", res.Entries[0].InstitutionName)
	require.Equal(t, 3, res.Entries[0].Rank)
	require.Equal(t, 96.9, *res.Entries[0].Score)
	require.Equal(t, ranking.UnknownCountry, res.Entries[0].Country)
	require.Empty(t, res.Entries[0].SourceURL)
}

func TestQSPages(t *testing.T) {
	t.Parallel()

	pages := NewQS().Pages()
	require.Len(t, pages, 5)
	require.Equal(t, qsBaseURL+"?page=1", pages[0])
	require.Equal(t, qsBaseURL+"?page=5", pages[4])
}

func TestARWUExtract(t *testing.T) {
	t.Parallel()

	res := NewARWU().Extract(loadDoc(t, "arwu.html"))
	require.Equal(t, 4, res.Rows)

	want := []ranking.RawEntry{
		{
			InstitutionName: "Harvard University",
			Country:         "United States",
			Rank:            1,
			Score:           ranking.Float(100),
			SourceURL:       "/institution/harvard-university",
			Metrics:         map[ranking.Metric]float64{ranking.MetricResearchImpact: 100},
		},
		{
			InstitutionName: "Stanford University",
			Country:         "United States",
			Rank:            2,
			Score:           ranking.Float(76.8),
			Metrics:         map[ranking.Metric]float64{ranking.MetricResearchImpact: 76.8},
		},
		{
			InstitutionName: "University of Example",
			Country:         ranking.UnknownCountry,
			Rank:            101,
		},
	}
	if diff := cmp.Diff(want, res.Entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []Skip{{Row: 4, Reason: "expected at least 3 cells, got 2"}}, res.Skipped)
}

func TestARWUFallsBackToAnyTable(t *testing.T) {
	t.Parallel()

	doc := docFromString(t, `<table>
<tr><th>Rank</th><th>Name</th><th>Score</th></tr>
<tr><td>n/a</td><td>Tsinghua University</td><td>59.1</td></tr>
</table>`)
	res := NewARWU().Extract(doc)
	require.Len(t, res.Entries, 1)
	require.Equal(t, ranking.UnknownRank, res.Entries[0].Rank)
}

func TestUSNewsExtract(t *testing.T) {
	t.Parallel()

	res := NewUSNews().Extract(loadDoc(t, "usnews.html"))
	want := []ranking.RawEntry{
		{
			InstitutionName: "Princeton University",
			Country:         "USA",
			Rank:            1,
			Score:           ranking.Float(100),
			SourceURL:       "/best-colleges/princeton-university-2627",
		},
		{
			InstitutionName: "Massachusetts Institute of Technology",
			Country:         "USA",
			Rank:            2,
		},
	}
	if diff := cmp.Diff(want, res.Entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []Skip{{Row: 3, Reason: errMissingName.Error()}}, res.Skipped)
}

func TestUSNewsFallsBackToItemList(t *testing.T) {
	t.Parallel()

	doc := docFromString(t, `<html><head>
<script type="application/ld+json">{"@type":"WebPage","name":"ignored"}</script>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"ItemList","itemListElement":[
  {"@type":"ListItem","position":1,"item":{"name":"Princeton University","url":"https://www.usnews.com/princeton"}},
  {"@type":"ListItem","position":2,"name":"Massachusetts Institute of Technology"},
  {"@type":"ListItem","position":3}
]}
</script></head><body></body></html>`)
	res := NewUSNews().Extract(doc)
	require.Equal(t, 3, res.Rows)
	require.Len(t, res.Entries, 2)
	require.Equal(t, "Princeton University", res.Entries[0].InstitutionName)
	require.Equal(t, "https://www.usnews.com/princeton", res.Entries[0].SourceURL)
	require.Equal(t, 2, res.Entries[1].Rank)
	require.Len(t, res.Skipped, 1)
}

func TestForbesExtract(t *testing.T) {
	t.Parallel()

	res := NewForbes().Extract(loadDoc(t, "forbes.html"))
	want := []ranking.RawEntry{
		{
			InstitutionName: "Princeton University",
			Country:         "USA",
			Rank:            1,
			Score:           ranking.Float(99.1),
			SourceURL:       "/colleges/princeton-university/",
		},
		{
			InstitutionName: "Stanford University",
			Country:         "USA",
			Rank:            2,
			SourceURL:       "/colleges/stanford-university/",
		},
		{
			InstitutionName: "Yale University",
			Country:         "USA",
			Rank:            3,
			SourceURL:       "/colleges/yale-university/",
		},
	}
	if diff := cmp.Diff(want, res.Entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, res.Skipped)
}

func TestForbesTableLayout(t *testing.T) {
	t.Parallel()

	doc := docFromString(t, `<table>
<tr><th>Rank</th><th>Name</th><th>Score</th></tr>
<tr><td class="rank">#7</td><td class="name">Brown University</td><td class="score">91</td></tr>
</table>`)
	res := NewForbes().Extract(doc)
	require.Len(t, res.Entries, 1)
	require.Equal(t, 7, res.Entries[0].Rank)
	require.Equal(t, "Brown University", res.Entries[0].InstitutionName)
	require.Equal(t, 91.0, *res.Entries[0].Score)
}

func TestNicheExtract(t *testing.T) {
	t.Parallel()

	res := NewNiche().Extract(loadDoc(t, "niche.html"))
	want := []ranking.RawEntry{
		{
			InstitutionName: "Massachusetts Institute of Technology",
			Country:         "USA",
			Rank:            1,
			Score:           ranking.Float(98),
			SourceURL:       "https://www.niche.com/colleges/massachusetts-institute-of-technology/",
		},
		{
			InstitutionName: "Stanford University",
			Country:         "USA",
			Rank:            2,
			Score:           ranking.Float(92),
			SourceURL:       "https://www.niche.com/colleges/stanford-university/",
		},
		{
			InstitutionName: "Sponsored Result",
			Country:         "USA",
			Rank:            3,
		},
	}
	if diff := cmp.Diff(want, res.Entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []Skip{{Row: 4, Reason: errMissingName.Error()}}, res.Skipped)
}

func TestExtractorsReturnNothingForUnrelatedMarkup(t *testing.T) {
	t.Parallel()

	doc := docFromString(t, `<html><body><p>Access denied</p></body></html>`)
	for _, code := range DefaultRegistry().Codes() {
		ex, err := DefaultRegistry().Resolve(code)
		require.NoError(t, err)
		res := ex.Extract(doc)
		require.Zero(t, res.Rows, code)
		require.Empty(t, res.Entries, code)
	}
}

func TestRowLimit(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<div>")
	for i := 0; i < 120; i++ {
		b.WriteString(`<div class="college-entry"><h3>College</h3></div>`)
	}
	b.WriteString("</div>")
	res := NewForbes().Extract(docFromString(t, b.String()))
	require.Equal(t, forbesMaxRows, res.Rows)
	require.Len(t, res.Entries, forbesMaxRows)
}
