package catalog

import (
	"sort"
	"strings"
)

// Catalog maps category -> subcategory -> ordered metrics. Metrics are
// mutated in place through indexing; the tree itself is never resized once
// loaded.
type Catalog map[string]map[string][]Metric

// Pair is the behavioral and imaging catalog shown side by side on the form.
type Pair struct {
	Behavioral Catalog `json:"behavioral"`
	Imaging    Catalog `json:"imaging"`
}

// Section names the catalog half a metric lives in.
type Section string

const (
	SectionBehavioral Section = "behavioral"
	SectionImaging    Section = "imaging"
)

// Ref points at one metric inside a catalog.
type Ref struct {
	Section     Section
	Category    string
	Subcategory string
	Index       int
	metrics     []Metric
}

// Metric returns the referenced metric for in-place updates.
func (r Ref) Metric() *Metric { return &r.metrics[r.Index] }

// Categories returns the category names in sorted order.
func (c Catalog) Categories() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Subcategories returns the subcategory names of category, sorted with the
// unnamed subcategory last.
func (c Catalog) Subcategories(category string) []string {
	subs := c[category]
	out := make([]string, 0, len(subs))
	for k := range subs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i] == "") != (out[j] == "") {
			return out[j] == ""
		}
		return out[i] < out[j]
	})
	return out
}

// Find locates metricName under category by scanning every subcategory.
func (c Catalog) Find(category, metricName string) (Ref, bool) {
	if _, ok := c[category]; !ok {
		return Ref{}, false
	}
	for _, sub := range c.Subcategories(category) {
		metrics := c[category][sub]
		for i := range metrics {
			if metrics[i].MetricName == metricName {
				return Ref{Category: category, Subcategory: sub, Index: i, metrics: metrics}, true
			}
		}
	}
	return Ref{}, false
}

// FindAny locates metricName in any category.
func (c Catalog) FindAny(metricName string) (Ref, bool) {
	for _, cat := range c.Categories() {
		if ref, ok := c.Find(cat, metricName); ok {
			return ref, true
		}
	}
	return Ref{}, false
}

// Walk visits every metric in deterministic order. Stop early by returning false.
func (c Catalog) Walk(fn func(category, subcategory string, m *Metric) bool) {
	for _, cat := range c.Categories() {
		for _, sub := range c.Subcategories(cat) {
			metrics := c[cat][sub]
			for i := range metrics {
				if !fn(cat, sub, &metrics[i]) {
					return
				}
			}
		}
	}
}

// Clone returns a deep copy.
func (c Catalog) Clone() Catalog {
	if c == nil {
		return nil
	}
	out := make(Catalog, len(c))
	for cat, subs := range c {
		cs := make(map[string][]Metric, len(subs))
		for sub, metrics := range subs {
			cp := make([]Metric, len(metrics))
			copy(cp, metrics)
			for i := range cp {
				if cp[i].ShowOrder != nil {
					v := *cp[i].ShowOrder
					cp[i].ShowOrder = &v
				}
			}
			cs[sub] = cp
		}
		out[cat] = cs
	}
	return out
}

// Reset clears selection, required flags and filter bounds on every metric.
func (c Catalog) Reset() {
	c.Walk(func(_, _ string, m *Metric) bool {
		m.clear()
		return true
	})
}

// ApplyDefaults normalizes entries loaded from an external source. Flags
// default to false and empty bounds to unset.
func (c Catalog) ApplyDefaults() {
	c.Walk(func(_, _ string, m *Metric) bool {
		if IsUnset(m.FilterValue1) {
			m.FilterValue1 = nil
		}
		if IsUnset(m.FilterValue2) {
			m.FilterValue2 = nil
		}
		if m.VariableType == "" {
			m.VariableType = TypeString
		}
		m.Space = Space(strings.ToLower(string(m.Space)))
		if m.IsRequired && !m.IsSelected {
			m.IsSelected = true
		}
		return true
	})
}

// Clone deep-copies both halves.
func (p Pair) Clone() Pair {
	return Pair{Behavioral: p.Behavioral.Clone(), Imaging: p.Imaging.Clone()}
}

// Reset clears both halves.
func (p Pair) Reset() {
	p.Behavioral.Reset()
	p.Imaging.Reset()
}

// Find looks in behavioral first, then imaging.
func (p Pair) Find(category, metricName string) (Ref, bool) {
	if ref, ok := p.Behavioral.Find(category, metricName); ok {
		ref.Section = SectionBehavioral
		return ref, true
	}
	if ref, ok := p.Imaging.Find(category, metricName); ok {
		ref.Section = SectionImaging
		return ref, true
	}
	return Ref{}, false
}

// FindAny locates metricName in any category of either half.
func (p Pair) FindAny(metricName string) (Ref, bool) {
	if ref, ok := p.Behavioral.FindAny(metricName); ok {
		ref.Section = SectionBehavioral
		return ref, true
	}
	if ref, ok := p.Imaging.FindAny(metricName); ok {
		ref.Section = SectionImaging
		return ref, true
	}
	return Ref{}, false
}

// Subcategory returns the metrics of one subcategory, behavioral first.
func (p Pair) Subcategory(category, subcategory string) ([]Metric, bool) {
	if ms, ok := p.Behavioral[category][subcategory]; ok {
		return ms, true
	}
	if ms, ok := p.Imaging[category][subcategory]; ok {
		return ms, true
	}
	return nil, false
}

// Category returns every metric list under category from both halves.
func (p Pair) Category(category string) [][]Metric {
	var out [][]Metric
	for _, c := range []Catalog{p.Behavioral, p.Imaging} {
		for _, sub := range c.Subcategories(category) {
			out = append(out, c[category][sub])
		}
	}
	return out
}

// MetricNames returns every metric_name in the pair.
func (p Pair) MetricNames() []string {
	var out []string
	for _, c := range []Catalog{p.Behavioral, p.Imaging} {
		c.Walk(func(_, _ string, m *Metric) bool {
			out = append(out, m.MetricName)
			return true
		})
	}
	return out
}
