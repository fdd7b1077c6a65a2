// Copyright 2026 Conductor OSS
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.

package docconv

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Quality is a conversion quality tier.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"

	DefaultQuality = QualityHigh
)

// Qualities returns the three tiers from lowest to highest.
func Qualities() []Quality {
	return []Quality{QualityLow, QualityMedium, QualityHigh}
}

// ParseQuality parses a tier name. The empty string selects DefaultQuality.
func ParseQuality(s string) (Quality, error) {
	switch q := Quality(strings.ToLower(strings.TrimSpace(s))); q {
	case "":
		return DefaultQuality, nil
	case QualityLow, QualityMedium, QualityHigh:
		return q, nil
	}
	return "", &ConfigurationError{Key: "quality", Value: s, Reason: "must be one of low, medium, high"}
}

// QualityParams are the concrete knobs a codec applies for a tier.
type QualityParams struct {
	// Compression is a deflate level (0-9) for zip-based and PDF output.
	Compression int `mapstructure:"compression"`
	// FontSize is the body font size in points for PDF output.
	FontSize float64 `mapstructure:"font_size"`
	// Indent is the JSON indentation width; 0 writes compact JSON.
	Indent int `mapstructure:"indent"`
	// MaxRows caps the rows written per table; 0 means unlimited.
	MaxRows int `mapstructure:"max_rows"`
	// MaxPages caps the PDF pages read; 0 means all pages.
	MaxPages int `mapstructure:"max_pages"`
	// FitColumns sizes spreadsheet columns to their content.
	FitColumns bool `mapstructure:"fit_columns"`
	// StyledHeaders emphasises the header row of spreadsheet and document tables.
	StyledHeaders bool `mapstructure:"styled_headers"`
}

// QualityRules resolves the parameters for a format at a tier.
type QualityRules interface {
	Resolve(f Format, q Quality) (QualityParams, error)
}

// maxSheetRows is the row limit of an xlsx worksheet.
const maxSheetRows = 1048576

var defaultGlobalParams = map[Quality]QualityParams{
	QualityLow: {
		Compression: 9,
		FontSize:    10,
		Indent:      0,
		MaxRows:     maxSheetRows,
	},
	QualityMedium: {
		Compression:   6,
		FontSize:      11,
		Indent:        2,
		MaxRows:       maxSheetRows,
		FitColumns:    true,
		StyledHeaders: true,
	},
	QualityHigh: {
		Compression:   1,
		FontSize:      12,
		Indent:        2,
		MaxRows:       maxSheetRows,
		FitColumns:    true,
		StyledHeaders: true,
	},
}

// RuleSet is a QualityRules backed by global per-tier parameters with optional
// per-format overrides.
type RuleSet struct {
	mu      sync.RWMutex
	global  map[Quality]QualityParams
	formats map[Format]map[Quality]QualityParams
}

// DefaultQualityRules returns the built-in rule set.
func DefaultQualityRules() *RuleSet {
	r := &RuleSet{
		global:  make(map[Quality]QualityParams, len(defaultGlobalParams)),
		formats: make(map[Format]map[Quality]QualityParams),
	}
	for q, p := range defaultGlobalParams {
		r.global[q] = p
	}
	return r
}

// Set replaces the parameters for a format and tier. An empty format sets the
// global fallback.
func (r *RuleSet) Set(f Format, q Quality, p QualityParams) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f == "" {
		r.global[q] = p
		return
	}
	if r.formats[f] == nil {
		r.formats[f] = make(map[Quality]QualityParams)
	}
	r.formats[f][q] = p
}

// Resolve implements QualityRules. A format without an override inherits the
// global parameters of the tier.
func (r *RuleSet) Resolve(f Format, q Quality) (QualityParams, error) {
	if q == "" {
		q = DefaultQuality
	}
	if _, err := ParseQuality(string(q)); err != nil {
		return QualityParams{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if byTier, ok := r.formats[f]; ok {
		if p, ok := byTier[q]; ok {
			return p, nil
		}
	}
	p, ok := r.global[q]
	if !ok {
		return QualityParams{}, &ConfigurationError{Key: "quality", Value: string(q), Reason: "no rules for tier"}
	}
	return p, nil
}

// LoadQualityRules reads a rules file (YAML, JSON or TOML) laid out as
// <format|global>.<tier>.<param>. A top-level "quality" section is honoured
// so the main configuration file can be passed directly.
func LoadQualityRules(path string) (*RuleSet, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read quality rules %s: %w", path, err)
	}
	if sub := v.Sub("quality"); sub != nil {
		v = sub
	}
	return QualityRulesFromViper(v)
}

// QualityRulesFromViper builds a rule set from a viper tree. Unset parameters
// fall back to the global tier (for formats) or to the built-in defaults.
func QualityRulesFromViper(v *viper.Viper) (*RuleSet, error) {
	r := DefaultQualityRules()
	if v == nil {
		return r, nil
	}
	for _, q := range Qualities() {
		base := r.global[q]
		if err := overlayParams(v, "global."+string(q), &base); err != nil {
			return nil, err
		}
		r.global[q] = base
	}
	for _, f := range SupportedFormats() {
		for _, q := range Qualities() {
			key := string(f) + "." + string(q)
			if !v.IsSet(key) {
				continue
			}
			p := r.global[q]
			if err := overlayParams(v, key, &p); err != nil {
				return nil, err
			}
			r.Set(f, q, p)
		}
	}
	return r, nil
}

func overlayParams(v *viper.Viper, key string, p *QualityParams) error {
	if !v.IsSet(key) {
		return nil
	}
	if err := v.UnmarshalKey(key, p); err != nil {
		return &ConfigurationError{Key: key, Reason: err.Error()}
	}
	if p.Compression < 0 || p.Compression > 9 {
		return &ConfigurationError{Key: key + ".compression", Value: fmt.Sprint(p.Compression), Reason: "must be between 0 and 9"}
	}
	if p.MaxRows < 0 || p.MaxPages < 0 || p.Indent < 0 {
		return &ConfigurationError{Key: key, Reason: "limits must not be negative"}
	}
	return nil
}
