// Package aggregate computes composite scores from stored ranking entries.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/JakeFAU/university-rankings/internal/ranking"
)

// Mean averages the non-nil scores and rounds to two decimals. It returns
// nil when no score is present.
func Mean(scores []*float64) *float64 {
	var sum float64
	n := 0
	for _, s := range scores {
		if s == nil {
			continue
		}
		sum += *s
		n++
	}
	if n == 0 {
		return nil
	}
	v := round2(sum / float64(n))
	return &v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CompositeScore is the mean score of an institution across the sources of
// region. It is recomputed from the reader on every call.
func CompositeScore(ctx context.Context, r ranking.Reader, institutionID int64, region ranking.Region) (*float64, error) {
	entries, err := r.ListEntries(ctx, ranking.EntryFilter{
		InstitutionID: institutionID,
		Region:        region,
		ScoredOnly:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	scores := make([]*float64, 0, len(entries))
	for _, e := range entries {
		scores = append(scores, e.Score)
	}
	return Mean(scores), nil
}

// Standing is one row of a regional leaderboard.
type Standing struct {
	Institution ranking.Institution
	Composite   float64
	Sources     int
}

// Leaderboard ranks institutions in region by composite score, highest
// first. A zero year covers every year; limit <= 0 returns every row.
func Leaderboard(ctx context.Context, r ranking.Reader, region ranking.Region, year, limit int) ([]Standing, error) {
	entries, err := r.ListEntries(ctx, ranking.EntryFilter{Region: region, Year: year, ScoredOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	byInst := make(map[int64][]*float64)
	for _, e := range entries {
		byInst[e.InstitutionID] = append(byInst[e.InstitutionID], e.Score)
	}
	out := make([]Standing, 0, len(byInst))
	for id, scores := range byInst {
		mean := Mean(scores)
		if mean == nil {
			continue
		}
		inst, err := r.GetInstitution(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get institution %d: %w", id, err)
		}
		out = append(out, Standing{Institution: inst, Composite: *mean, Sources: len(scores)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Composite != out[j].Composite {
			return out[i].Composite > out[j].Composite
		}
		return out[i].Institution.Name < out[j].Institution.Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// minSimilarity is the Jaro-Winkler floor for a name to count as a suggestion.
const minSimilarity = 0.85

// Suggest returns up to n stored institution names closest to name.
func Suggest(ctx context.Context, r ranking.Reader, name string, n int) ([]string, error) {
	all, err := r.ListInstitutions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list institutions: %w", err)
	}
	type match struct {
		name  string
		score float64
	}
	want := strings.ToLower(strings.TrimSpace(name))
	var matches []match
	for _, inst := range all {
		score := matchr.JaroWinkler(want, strings.ToLower(inst.Name), false)
		if score >= minSimilarity {
			matches = append(matches, match{name: inst.Name, score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].name < matches[j].name
	})
	if n > 0 && len(matches) > n {
		matches = matches[:n]
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.name
	}
	return names, nil
}

// InstitutionNotFoundError carries close matches for an unknown name.
type InstitutionNotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *InstitutionNotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("institution %q not found", e.Name)
	}
	return fmt.Sprintf("institution %q not found; did you mean %s?", e.Name, strings.Join(e.Suggestions, ", "))
}

func (e *InstitutionNotFoundError) Unwrap() error { return ranking.ErrNotFound }

// Regional holds one institution's composite per region.
type Regional struct {
	Institution ranking.Institution
	Scores      map[ranking.Region]*float64
}

// ForInstitution resolves name exactly and computes its composite in every
// region. Unknown names yield *InstitutionNotFoundError with suggestions.
func ForInstitution(ctx context.Context, r ranking.Reader, name string) (Regional, error) {
	inst, err := r.FindInstitution(ctx, name)
	if errors.Is(err, ranking.ErrNotFound) {
		suggestions, serr := Suggest(ctx, r, name, 3)
		if serr != nil {
			return Regional{}, serr
		}
		return Regional{}, &InstitutionNotFoundError{Name: name, Suggestions: suggestions}
	}
	if err != nil {
		return Regional{}, fmt.Errorf("find institution: %w", err)
	}
	out := Regional{Institution: inst, Scores: make(map[ranking.Region]*float64, 2)}
	for _, region := range []ranking.Region{ranking.RegionInternational, ranking.RegionAmerican} {
		score, err := CompositeScore(ctx, r, inst.ID, region)
		if err != nil {
			return Regional{}, err
		}
		out.Scores[region] = score
	}
	return out, nil
}
