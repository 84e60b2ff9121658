// Package ranking holds the canonical ranking model shared by extractors,
// the ingest orchestrator, storage backends and aggregation.
package ranking

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Region partitions sources into comparable groups for aggregation.
type Region string

// Supported regions.
const (
	RegionInternational Region = "INTERNATIONAL"
	RegionAmerican      Region = "AMERICAN"
)

// ParseRegion accepts a region name in any case.
func ParseRegion(s string) (Region, error) {
	switch Region(strings.ToUpper(strings.TrimSpace(s))) {
	case RegionInternational:
		return RegionInternational, nil
	case RegionAmerican:
		return RegionAmerican, nil
	default:
		return "", fmt.Errorf("unknown region %q", s)
	}
}

// FetchStatus is the outcome recorded for the latest fetch of a source.
type FetchStatus string

// Cache statuses.
const (
	StatusPending FetchStatus = "PENDING"
	StatusSuccess FetchStatus = "SUCCESS"
	StatusFailed  FetchStatus = "FAILED"
)

// Metric names a sub-score a source may publish alongside the overall score.
type Metric string

// The fixed metric vocabulary.
const (
	MetricAcademicReputation     Metric = "academic_reputation"
	MetricEmployerReputation     Metric = "employer_reputation"
	MetricFacultyStudentRatio    Metric = "faculty_student_ratio"
	MetricResearchImpact         Metric = "research_impact"
	MetricInternationalDiversity Metric = "international_diversity"
	MetricTeachingQuality        Metric = "teaching_quality"
	MetricStudentSatisfaction    Metric = "student_satisfaction"
)

// Metrics lists every supported metric in storage column order.
var Metrics = []Metric{
	MetricAcademicReputation,
	MetricEmployerReputation,
	MetricFacultyStudentRatio,
	MetricResearchImpact,
	MetricInternationalDiversity,
	MetricTeachingQuality,
	MetricStudentSatisfaction,
}

// Valid reports whether m belongs to the fixed vocabulary.
func (m Metric) Valid() bool {
	for _, known := range Metrics {
		if m == known {
			return true
		}
	}
	return false
}

const (
	// UnknownRank marks an entry whose position could not be parsed.
	UnknownRank = 999
	// UnknownCountry is used when a row carries no location.
	UnknownCountry = "Unknown"
	// DefaultUpdateFrequency is how long a successful fetch stays fresh.
	DefaultUpdateFrequency = 24 * time.Hour
	// MaxScore bounds every score and metric value.
	MaxScore = 100.0
)

// Source is a ranking publisher.
type Source struct {
	Code            string
	Name            string
	Region          Region
	WebsiteURL      string
	Description     string
	UpdateFrequency time.Duration
	CreatedAt       time.Time
}

// Institution is a university, identified by its unique name.
type Institution struct {
	ID         int64
	Name       string
	Country    string
	City       string
	WebsiteURL string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EntryKey is the natural key of a ranking entry.
type EntryKey struct {
	InstitutionID int64
	SourceCode    string
	Year          int
}

// Entry is one institution's position in one source for one year.
type Entry struct {
	EntryKey
	// Region is copied from the owning source on reads.
	Region        Region
	Rank          int
	Score         *float64
	Metrics       map[Metric]float64
	DataSourceURL string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EntryUpsert carries the values written for a natural key. Rank, Score and
// DataSourceURL replace stored values; Metrics are merged key by key.
type EntryUpsert struct {
	Key           EntryKey
	Rank          int
	Score         *float64
	Metrics       map[Metric]float64
	DataSourceURL string
}

// EntryFilter narrows ListEntries. Zero values match everything.
type EntryFilter struct {
	SourceCode    string
	Region        Region
	Year          int
	InstitutionID int64
	ScoredOnly    bool
}

// CacheState records fetch bookkeeping for a single source.
type CacheState struct {
	SourceCode          string
	LastFetchTime       *time.Time
	LastSuccessfulFetch *time.Time
	Status              FetchStatus
	ErrorMessage        string
	RecordsFetched      int
}

// RawEntry is the canonical record an extractor produces for one row.
type RawEntry struct {
	InstitutionName string
	Country         string
	Rank            int
	Score           *float64
	SourceURL       string
	Metrics         map[Metric]float64
}

// Validate enforces the canonical record contract.
func (r RawEntry) Validate() error {
	if strings.TrimSpace(r.InstitutionName) == "" {
		return errors.New("institution name is required")
	}
	if r.Rank < 1 {
		return fmt.Errorf("rank must be >= 1, got %d", r.Rank)
	}
	if r.Score != nil && !inRange(*r.Score) {
		return fmt.Errorf("score %v out of range", *r.Score)
	}
	for m, v := range r.Metrics {
		if !m.Valid() {
			return fmt.Errorf("unknown metric %q", m)
		}
		if !inRange(v) {
			return fmt.Errorf("metric %s value %v out of range", m, v)
		}
	}
	return nil
}

func inRange(v float64) bool {
	return v >= 0 && v <= MaxScore
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
