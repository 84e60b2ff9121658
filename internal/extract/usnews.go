package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/university-rankings/internal/normalize"
	"github.com/JakeFAU/university-rankings/internal/ranking"
)

const (
	usnewsURL     = "https://www.usnews.com/best-colleges/rankings/national-universities"
	usnewsMaxRows = 100
	usaCountry    = "USA"
)

var (
	usnewsRows  = Chain{CSS("div.RankList__ListItem"), CSS("div.RankingCard"), CSS("li.UnorderedListStyled")}
	usnewsName  = Chain{CSS("a.Heading"), CSS("h3"), CSS("a")}
	usnewsScore = Chain{CSS("span.RankList__Score")}
	usnewsRank  = Chain{CSS("span.RankList__Rank")}
)

// USNews extracts US News Best Colleges. The list is rendered client side, so
// when no cards are present the JSON-LD ItemList embedded in the page is used.
type USNews struct {
	url string
}

// NewUSNews returns the US News extractor.
func NewUSNews() *USNews {
	return &USNews{url: usnewsURL}
}

// Code implements Extractor.
func (*USNews) Code() string { return "usnews" }

// Pages implements Extractor.
func (u *USNews) Pages() []string { return []string{u.url} }

// Extract implements Extractor.
func (*USNews) Extract(doc *goquery.Document) Result {
	cards := usnewsRows.Find(doc.Selection)
	if cards.Length() > 0 {
		return ParseRows(cards, usnewsMaxRows, parseUSNewsCard)
	}
	return extractItemList(doc, usnewsMaxRows)
}

func parseUSNewsCard(position int, card *goquery.Selection) (ranking.RawEntry, error) {
	nameEl := usnewsName.First(card)
	name := normalize.CleanText(nameEl.Text())
	if name == "" {
		return ranking.RawEntry{}, errMissingName
	}
	entry := ranking.RawEntry{
		InstitutionName: name,
		Country:         usaCountry,
		Rank:            position,
		SourceURL:       href(nameEl),
	}
	if text, ok := usnewsRank.Text(card); ok {
		entry.Rank = normalize.PositionalRank(text, "#", position)
	}
	if text, ok := usnewsScore.Text(card); ok {
		entry.Score = normalize.Score(text)
	}
	return entry, nil
}

type ldItemList struct {
	Type     string `json:"@type"`
	Elements []struct {
		Position int    `json:"position"`
		Name     string `json:"name"`
		URL      string `json:"url"`
		Item     *struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"item"`
	} `json:"itemListElement"`
}

func extractItemList(doc *goquery.Document, limit int) Result {
	var res Result
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var list ldItemList
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &list); err != nil || list.Type != "ItemList" {
			return true
		}
		for i, el := range list.Elements {
			if limit > 0 && i >= limit {
				break
			}
			res.Rows++
			name, link := el.Name, el.URL
			if el.Item != nil {
				if name == "" {
					name = el.Item.Name
				}
				if link == "" {
					link = el.Item.URL
				}
			}
			rank := el.Position
			if rank < 1 {
				rank = i + 1
			}
			entry := ranking.RawEntry{
				InstitutionName: normalize.CleanText(name),
				Country:         usaCountry,
				Rank:            rank,
				SourceURL:       link,
			}
			if err := entry.Validate(); err != nil {
				res.Skipped = append(res.Skipped, Skip{Row: i + 1, Reason: err.Error()})
				continue
			}
			res.Entries = append(res.Entries, entry)
		}
		return false
	})
	return res
}
