// Package catalog holds the default set of ranking sources.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/university-rankings/internal/ranking"
)

//go:embed sources.yaml
var defaultSources []byte

type sourceDoc struct {
	Code            string `yaml:"code"`
	Name            string `yaml:"name"`
	Region          string `yaml:"region"`
	WebsiteURL      string `yaml:"website_url"`
	Description     string `yaml:"description"`
	UpdateFrequency string `yaml:"update_frequency"`
}

type catalogDoc struct {
	Sources []sourceDoc `yaml:"sources"`
}

// Defaults returns the built-in sources in catalogue order.
func Defaults() ([]ranking.Source, error) {
	return Parse(defaultSources)
}

// Parse decodes a YAML catalogue. Codes must be unique and regions valid;
// a missing update_frequency means ranking.DefaultUpdateFrequency.
func Parse(data []byte) ([]ranking.Source, error) {
	var doc catalogDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Sources))
	out := make([]ranking.Source, 0, len(doc.Sources))
	for i, s := range doc.Sources {
		if s.Code == "" || s.Name == "" {
			return nil, fmt.Errorf("catalog entry %d: code and name are required", i)
		}
		if _, dup := seen[s.Code]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate code %q", i, s.Code)
		}
		seen[s.Code] = struct{}{}
		region, err := ranking.ParseRegion(s.Region)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %s: %w", s.Code, err)
		}
		freq := ranking.DefaultUpdateFrequency
		if s.UpdateFrequency != "" {
			freq, err = time.ParseDuration(s.UpdateFrequency)
			if err != nil || freq <= 0 {
				return nil, fmt.Errorf("catalog entry %s: invalid update_frequency %q", s.Code, s.UpdateFrequency)
			}
		}
		out = append(out, ranking.Source{
			Code:            s.Code,
			Name:            s.Name,
			Region:          region,
			WebsiteURL:      s.WebsiteURL,
			Description:     s.Description,
			UpdateFrequency: freq,
		})
	}
	return out, nil
}

// WithFrequencies returns sources with per-code update frequency overrides
// applied. Unknown codes in overrides are reported.
func WithFrequencies(sources []ranking.Source, overrides map[string]time.Duration) ([]ranking.Source, error) {
	out := append([]ranking.Source(nil), sources...)
	index := make(map[string]int, len(out))
	for i, s := range out {
		index[s.Code] = i
	}
	for code, freq := range overrides {
		i, ok := index[code]
		if !ok {
			return nil, fmt.Errorf("frequency override for unknown source %q", code)
		}
		if freq <= 0 {
			return nil, fmt.Errorf("frequency override for %s must be positive", code)
		}
		out[i].UpdateFrequency = freq
	}
	return out, nil
}

// Registrar is the part of ranking.Store that registers sources.
type Registrar interface {
	EnsureSource(ctx context.Context, src ranking.Source) (ranking.Source, bool, error)
}

// Ensure get-or-creates every source and returns how many were new.
// Existing sources are left unchanged.
func Ensure(ctx context.Context, store Registrar, sources []ranking.Source) (int, error) {
	created := 0
	for _, src := range sources {
		_, isNew, err := store.EnsureSource(ctx, src)
		if err != nil {
			return created, fmt.Errorf("ensure source %s: %w", src.Code, err)
		}
		if isNew {
			created++
		}
	}
	return created, nil
}
