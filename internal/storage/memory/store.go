// Package memory keeps ranking data in process memory for development and
// tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/university-rankings/internal/clock/system"
	"github.com/JakeFAU/university-rankings/internal/ranking"
)

// Store implements ranking.Repository with maps guarded by a RWMutex.
type Store struct {
	mu           sync.RWMutex
	clock        ranking.Clock
	sources      map[string]ranking.Source
	sourceOrder  []string
	institutions map[int64]ranking.Institution
	byName       map[string]int64
	nextID       int64
	entries      map[ranking.EntryKey]ranking.Entry
	cache        map[string]ranking.CacheState

	lockMu sync.Mutex
	locks  map[string]struct{}
}

var _ ranking.Repository = (*Store)(nil)

// New builds an empty Store. A nil clock uses wall time.
func New(clock ranking.Clock) *Store {
	if clock == nil {
		clock = system.New()
	}
	return &Store{
		clock:        clock,
		sources:      make(map[string]ranking.Source),
		institutions: make(map[int64]ranking.Institution),
		byName:       make(map[string]int64),
		entries:      make(map[ranking.EntryKey]ranking.Entry),
		cache:        make(map[string]ranking.CacheState),
		locks:        make(map[string]struct{}),
	}
}

// Close implements ranking.Repository.
func (s *Store) Close() {}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// EnsureSource creates src when its code is unknown.
func (s *Store) EnsureSource(_ context.Context, src ranking.Source) (ranking.Source, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sources[src.Code]; ok {
		return existing, false, nil
	}
	if src.UpdateFrequency <= 0 {
		src.UpdateFrequency = ranking.DefaultUpdateFrequency
	}
	src.CreatedAt = s.clock.Now()
	s.sources[src.Code] = src
	s.sourceOrder = append(s.sourceOrder, src.Code)
	return src, true, nil
}

// GetSource returns ranking.ErrNotFound for unknown codes.
func (s *Store) GetSource(_ context.Context, code string) (ranking.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[code]
	if !ok {
		return ranking.Source{}, fmt.Errorf("source %s: %w", code, ranking.ErrNotFound)
	}
	return src, nil
}

// ListSources returns sources in creation order.
func (s *Store) ListSources(_ context.Context) ([]ranking.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ranking.Source, 0, len(s.sourceOrder))
	for _, code := range s.sourceOrder {
		out = append(out, s.sources[code])
	}
	return out, nil
}

// GetOrCreateInstitution looks up by exact name.
func (s *Store) GetOrCreateInstitution(_ context.Context, inst ranking.Institution) (ranking.Institution, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byName[inst.Name]; ok {
		return s.institutions[id], false, nil
	}
	s.nextID++
	now := s.clock.Now()
	inst.ID = s.nextID
	inst.CreatedAt = now
	inst.UpdatedAt = now
	s.institutions[inst.ID] = inst
	s.byName[inst.Name] = inst.ID
	return inst, true, nil
}

// UpsertEntry writes by natural key, merging metrics into any existing row.
func (s *Store) UpsertEntry(_ context.Context, in ranking.EntryUpsert) (ranking.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[in.Key.SourceCode]
	if !ok {
		return ranking.Entry{}, false, fmt.Errorf("source %s: %w", in.Key.SourceCode, ranking.ErrNotFound)
	}
	if _, ok := s.institutions[in.Key.InstitutionID]; !ok {
		return ranking.Entry{}, false, fmt.Errorf("institution %d: %w", in.Key.InstitutionID, ranking.ErrNotFound)
	}
	now := s.clock.Now()
	entry, exists := s.entries[in.Key]
	if !exists {
		entry = ranking.Entry{EntryKey: in.Key, CreatedAt: now}
	}
	entry.Rank = in.Rank
	entry.Score = copyFloat(in.Score)
	entry.DataSourceURL = in.DataSourceURL
	entry.UpdatedAt = now
	if len(in.Metrics) > 0 {
		merged := copyMetrics(entry.Metrics)
		if merged == nil {
			merged = make(map[ranking.Metric]float64, len(in.Metrics))
		}
		for k, v := range in.Metrics {
			merged[k] = v
		}
		entry.Metrics = merged
	}
	s.entries[in.Key] = entry
	return withRegion(entry, src.Region), !exists, nil
}

// GetOrCreateCacheState returns the row for code, creating a PENDING one.
func (s *Store) GetOrCreateCacheState(_ context.Context, code string) (ranking.CacheState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[code]; !ok {
		return ranking.CacheState{}, fmt.Errorf("source %s: %w", code, ranking.ErrNotFound)
	}
	state, ok := s.cache[code]
	if !ok {
		state = ranking.CacheState{SourceCode: code, Status: ranking.StatusPending}
		s.cache[code] = state
	}
	return copyState(state), nil
}

// GetCacheState returns ranking.ErrNotFound when no row exists.
func (s *Store) GetCacheState(_ context.Context, code string) (ranking.CacheState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.cache[code]
	if !ok {
		return ranking.CacheState{}, fmt.Errorf("cache state %s: %w", code, ranking.ErrNotFound)
	}
	return copyState(state), nil
}

// SaveCacheState replaces the row for state.SourceCode.
func (s *Store) SaveCacheState(_ context.Context, state ranking.CacheState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[state.SourceCode]; !ok {
		return fmt.Errorf("source %s: %w", state.SourceCode, ranking.ErrNotFound)
	}
	s.cache[state.SourceCode] = copyState(state)
	return nil
}

// AcquireSourceLock fails fast with ranking.ErrSourceBusy.
func (s *Store) AcquireSourceLock(_ context.Context, code string) (func(), error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if _, held := s.locks[code]; held {
		return nil, ranking.ErrSourceBusy
	}
	s.locks[code] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			s.lockMu.Lock()
			delete(s.locks, code)
			s.lockMu.Unlock()
		})
	}, nil
}

// ListEntries returns copies ordered by source, rank and institution.
func (s *Store) ListEntries(_ context.Context, f ranking.EntryFilter) ([]ranking.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ranking.Entry
	for key, entry := range s.entries {
		src := s.sources[key.SourceCode]
		switch {
		case f.SourceCode != "" && key.SourceCode != f.SourceCode:
			continue
		case f.Region != "" && src.Region != f.Region:
			continue
		case f.Year != 0 && key.Year != f.Year:
			continue
		case f.InstitutionID != 0 && key.InstitutionID != f.InstitutionID:
			continue
		case f.ScoredOnly && entry.Score == nil:
			continue
		}
		out = append(out, withRegion(entry, src.Region))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SourceCode != b.SourceCode {
			return a.SourceCode < b.SourceCode
		}
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		return a.InstitutionID < b.InstitutionID
	})
	return out, nil
}

// GetInstitution returns ranking.ErrNotFound for unknown ids.
func (s *Store) GetInstitution(_ context.Context, id int64) (ranking.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.institutions[id]
	if !ok {
		return ranking.Institution{}, fmt.Errorf("institution %d: %w", id, ranking.ErrNotFound)
	}
	return inst, nil
}

// FindInstitution looks up by exact name.
func (s *Store) FindInstitution(_ context.Context, name string) (ranking.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return ranking.Institution{}, fmt.Errorf("institution %q: %w", name, ranking.ErrNotFound)
	}
	return s.institutions[id], nil
}

// ListInstitutions returns institutions ordered by id.
func (s *Store) ListInstitutions(_ context.Context) ([]ranking.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ranking.Institution, 0, len(s.institutions))
	for _, inst := range s.institutions {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func withRegion(e ranking.Entry, region ranking.Region) ranking.Entry {
	e.Region = region
	e.Score = copyFloat(e.Score)
	e.Metrics = copyMetrics(e.Metrics)
	return e
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func copyMetrics(m map[ranking.Metric]float64) map[ranking.Metric]float64 {
	if m == nil {
		return nil
	}
	out := make(map[ranking.Metric]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyState(s ranking.CacheState) ranking.CacheState {
	s.LastFetchTime = copyTime(s.LastFetchTime)
	s.LastSuccessfulFetch = copyTime(s.LastSuccessfulFetch)
	return s
}
