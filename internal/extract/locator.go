package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/university-rankings/internal/normalize"
)

// Locator finds candidate elements under a selection.
type Locator func(*goquery.Selection) *goquery.Selection

// Chain is an ordered list of fallbacks; the first non-empty match wins.
type Chain []Locator

// Find returns the first non-empty match, or an empty selection.
func (c Chain) Find(s *goquery.Selection) *goquery.Selection {
	for _, locate := range c {
		if found := locate(s); found != nil && found.Length() > 0 {
			return found
		}
	}
	return empty(s)
}

// First returns the first element of the first non-empty match.
func (c Chain) First(s *goquery.Selection) *goquery.Selection {
	return c.Find(s).First()
}

// Text returns the cleaned text of the first match and whether one existed.
func (c Chain) Text(s *goquery.Selection) (string, bool) {
	el := c.First(s)
	if el.Length() == 0 {
		return "", false
	}
	return normalize.CleanText(el.Text()), true
}

// CSS matches descendants by selector.
func CSS(selector string) Locator {
	return func(s *goquery.Selection) *goquery.Selection {
		return s.Find(selector)
	}
}

// TableRows matches the rows of the first table selected, minus its header
// row.
func TableRows(tableSelector string) Locator {
	return func(s *goquery.Selection) *goquery.Selection {
		rows := s.Find(tableSelector).First().Find("tr")
		if rows.Length() <= 1 {
			return empty(rows)
		}
		return rows.Slice(1, goquery.ToEnd)
	}
}

func empty(s *goquery.Selection) *goquery.Selection {
	return s.Slice(0, 0)
}

func href(s *goquery.Selection) string {
	v, _ := s.Attr("href")
	return v
}
