// Package seed loads a fixed demo dataset so aggregation and reporting can be
// exercised without scraping live sites.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/university-rankings/internal/ranking"
)

//go:embed demo.yaml
var demoData []byte

// Year is the ranking year demo entries are stored under.
const Year = 2025

// Institution is one demo university and its rank per source code.
type Institution struct {
	Name    string         `yaml:"name"`
	Country string         `yaml:"country"`
	City    string         `yaml:"city"`
	Ranks   map[string]int `yaml:"ranks"`
}

// Demo returns the embedded dataset.
func Demo() ([]Institution, error) {
	var doc struct {
		Institutions []Institution `yaml:"institutions"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(demoData))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode demo data: %w", err)
	}
	return doc.Institutions, nil
}

// ScoreForRank derives a 0-100 score from a rank with a piecewise linear
// curve, rounded to one decimal.
func ScoreForRank(rank int) float64 {
	r := float64(rank)
	var score float64
	switch {
	case rank <= 10:
		score = 100 - (r - 1)
	case rank <= 50:
		score = 90 - (r-10)*0.5
	case rank <= 100:
		score = 70 - (r-50)*0.4
	default:
		score = math.Max(20, 50-(r-100)*0.15)
	}
	return math.Round(score*10) / 10
}

// Result counts what a seed run wrote.
type Result struct {
	NewInstitutions int
	Entries         int
	// BySource counts entries written per source code.
	BySource map[string]int
}

// Load writes data for year. Ranks for codes that are not registered
// sources are ignored. Rerunning converges to the same rows.
func Load(ctx context.Context, store ranking.Store, data []Institution, year int) (Result, error) {
	sources, err := store.ListSources(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list sources: %w", err)
	}
	if len(sources) == 0 {
		return Result{}, errors.New("no sources registered")
	}
	known := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		known[s.Code] = struct{}{}
	}

	res := Result{BySource: make(map[string]int)}
	for _, d := range data {
		country := d.Country
		if country == "" {
			country = ranking.UnknownCountry
		}
		inst, created, err := store.GetOrCreateInstitution(ctx, ranking.Institution{
			Name:    d.Name,
			Country: country,
			City:    d.City,
		})
		if err != nil {
			return res, fmt.Errorf("institution %q: %w", d.Name, err)
		}
		if created {
			res.NewInstitutions++
		}
		for code, rank := range d.Ranks {
			if _, ok := known[code]; !ok || rank < 1 {
				continue
			}
			_, _, err := store.UpsertEntry(ctx, ranking.EntryUpsert{
				Key:   ranking.EntryKey{InstitutionID: inst.ID, SourceCode: code, Year: year},
				Rank:  rank,
				Score: ranking.Float(ScoreForRank(rank)),
			})
			if err != nil {
				return res, fmt.Errorf("entry %q/%s: %w", d.Name, code, err)
			}
			res.Entries++
			res.BySource[code]++
		}
	}
	return res, nil
}
