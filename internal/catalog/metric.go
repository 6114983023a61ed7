// Package catalog holds the behavioral and imaging metric catalogs: the
// category -> subcategory -> metric tree the request form is built from.
package catalog

import (
	"fmt"
	"strings"
)

type VariableType string

const (
	TypeFloat  VariableType = "float"
	TypeInt    VariableType = "int"
	TypeString VariableType = "string"
)

// Space is the coordinate space of an imaging metric. Behavioral metrics
// leave it empty.
type Space string

const (
	SpaceNone   Space = ""
	SpaceNative Space = "native"
	SpaceMNI    Space = "mni"
)

type Timepoint string

const (
	Baseline Timepoint = "baseline"
	Multi    Timepoint = "multi"
)

// ParseTimepoint accepts "baseline" or "multi" (case-insensitive).
func ParseTimepoint(s string) (Timepoint, error) {
	switch Timepoint(strings.ToLower(strings.TrimSpace(s))) {
	case Baseline:
		return Baseline, nil
	case Multi:
		return Multi, nil
	}
	return "", fmt.Errorf("unknown timepoint %q", s)
}

// Metric is one queryable data column.
type Metric struct {
	MetricName   string       `json:"metric_name" yaml:"metric_name"`
	Name         string       `json:"name,omitempty" yaml:"name,omitempty"`
	VariableType VariableType `json:"variable_type" yaml:"variable_type"`
	Description  string       `json:"description" yaml:"description"`
	IsRequired   bool         `json:"is_required" yaml:"is_required"`
	IsSelected   bool         `json:"is_selected" yaml:"is_selected"`
	FilterValue1 any          `json:"filter_value1" yaml:"filter_value1,omitempty"`
	FilterValue2 any          `json:"filter_value2" yaml:"filter_value2,omitempty"`
	Space        Space        `json:"space,omitempty" yaml:"space,omitempty"`
	Essential    bool         `json:"essential" yaml:"essential"`
	ShowOrder    *int         `json:"show_order,omitempty" yaml:"show_order,omitempty"`
}

// DisplayName returns the human label, falling back to the column name when
// the catalog carries no usable name.
func (m Metric) DisplayName() string {
	n := strings.TrimSpace(m.Name)
	if n == "" || strings.EqualFold(n, "none") {
		return m.MetricName
	}
	return n
}

// clear drops selection state and filter bounds.
func (m *Metric) clear() {
	m.IsSelected = false
	m.IsRequired = false
	m.FilterValue1 = nil
	m.FilterValue2 = nil
}

// IsUnset reports whether a filter bound carries no value. Empty strings and
// zero are treated as unset, matching how bounds are emitted into documents.
func IsUnset(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case float64:
		return t == 0
	case int:
		return t == 0
	case bool:
		return !t
	}
	return false
}
