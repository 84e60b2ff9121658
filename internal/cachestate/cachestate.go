// Package cachestate tracks when each source was last fetched and decides
// which sources are stale.
package cachestate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/university-rankings/internal/ranking"
)

// Reasons reported for stale sources.
const (
	ReasonNeverFetched = "never fetched"
	ReasonNoCacheData  = "no cache data"
)

// IsStale reports whether a source needs refreshing at now. A nil state or a
// source that never succeeded is always stale.
func IsStale(state *ranking.CacheState, freq time.Duration, now time.Time) bool {
	if state == nil || state.LastSuccessfulFetch == nil {
		return true
	}
	if freq <= 0 {
		freq = ranking.DefaultUpdateFrequency
	}
	return now.Sub(*state.LastSuccessfulFetch) > freq
}

// FormatAge renders d as "3d 4h ago".
func FormatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	hours := int((d % (24 * time.Hour)) / time.Hour)
	return fmt.Sprintf("%dd %dh ago", days, hours)
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Tracker is the only writer of cache state.
type Tracker struct {
	store ranking.Store
	clock ranking.Clock
}

// NewTracker builds a Tracker.
func NewTracker(store ranking.Store, clock ranking.Clock) *Tracker {
	return &Tracker{store: store, clock: clock}
}

// Begin returns the current state for code, creating a PENDING row if none
// exists.
func (t *Tracker) Begin(ctx context.Context, code string) (ranking.CacheState, error) {
	state, err := t.store.GetOrCreateCacheState(ctx, code)
	if err != nil {
		return ranking.CacheState{}, fmt.Errorf("load cache state: %w", err)
	}
	return state, nil
}

// MarkSuccess stamps both fetch times and records the row count.
func (t *Tracker) MarkSuccess(ctx context.Context, state ranking.CacheState, records int) (ranking.CacheState, error) {
	now := t.clock.Now()
	state.LastFetchTime = &now
	state.LastSuccessfulFetch = &now
	state.Status = ranking.StatusSuccess
	state.ErrorMessage = ""
	state.RecordsFetched = records
	if err := t.store.SaveCacheState(ctx, state); err != nil {
		return state, fmt.Errorf("save cache state: %w", err)
	}
	return state, nil
}

// MarkFailed stamps the attempt time and keeps the last success untouched.
func (t *Tracker) MarkFailed(ctx context.Context, state ranking.CacheState, msg string) (ranking.CacheState, error) {
	now := t.clock.Now()
	state.LastFetchTime = &now
	state.Status = ranking.StatusFailed
	state.ErrorMessage = msg
	if err := t.store.SaveCacheState(ctx, state); err != nil {
		return state, fmt.Errorf("save cache state: %w", err)
	}
	return state, nil
}

// SourceStatus pairs a source with its cache row, if any.
type SourceStatus struct {
	Source ranking.Source
	// State is nil when the source was never attempted.
	State *ranking.CacheState
	Stale bool
	// Age is the time since the last successful fetch, zero when never.
	Age time.Duration
}

// StaleSource is a source that should be refreshed.
type StaleSource struct {
	Code   string
	Name   string
	Reason string
}

// Status reports every registered source. It never writes.
func (t *Tracker) Status(ctx context.Context) ([]SourceStatus, error) {
	sources, err := t.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	now := t.clock.Now()
	out := make([]SourceStatus, 0, len(sources))
	for _, src := range sources {
		st := SourceStatus{Source: src}
		state, err := t.store.GetCacheState(ctx, src.Code)
		switch {
		case errors.Is(err, ranking.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("get cache state %s: %w", src.Code, err)
		default:
			st.State = &state
			if state.LastSuccessfulFetch != nil {
				st.Age = now.Sub(*state.LastSuccessfulFetch)
			}
		}
		st.Stale = IsStale(st.State, src.UpdateFrequency, now)
		out = append(out, st)
	}
	return out, nil
}

// Stale lists sources whose cache is missing, never succeeded or older than
// their update frequency.
func (t *Tracker) Stale(ctx context.Context) ([]StaleSource, error) {
	statuses, err := t.Status(ctx)
	if err != nil {
		return nil, err
	}
	var out []StaleSource
	for _, st := range statuses {
		if !st.Stale {
			continue
		}
		reason := ReasonNeverFetched
		switch {
		case st.State == nil:
			reason = ReasonNoCacheData
		case st.State.LastSuccessfulFetch != nil:
			reason = "last fetch " + FormatAge(st.Age)
		}
		out = append(out, StaleSource{Code: st.Source.Code, Name: st.Source.Name, Reason: reason})
	}
	return out, nil
}
