// Package selection implements the state transitions a requester drives on
// the metric catalogs: toggling selected/required flags, bulk edits and the
// OR-group editor.
//
// All functions tolerate unknown categories, subcategories and metric names
// and treat them as no-ops, since the catalog is supplied externally and may
// lag behind a stored request document.
package selection

import "github.com/npnl/enigma-request/internal/catalog"

type ViewMode string

const (
	ViewBasic    ViewMode = "basic"
	ViewAdvanced ViewMode = "advanced"
)

type SpaceMode string

const (
	SpaceNative SpaceMode = "native"
	SpaceMNI    SpaceMode = "mni"
)

// ViewFilter is the view state that gates bulk selection.
type ViewFilter struct {
	View  ViewMode  `json:"view_mode"`
	Space SpaceMode `json:"space_mode"`
}

// DefaultFilter is the form's initial view: basic metrics in native space.
var DefaultFilter = ViewFilter{View: ViewBasic, Space: SpaceNative}

// Admits reports whether m is visible under the filter.
func (f ViewFilter) Admits(m catalog.Metric) bool {
	if f.View == ViewBasic && !m.Essential {
		return false
	}
	switch f.Space {
	case SpaceNative:
		if m.Space == catalog.SpaceMNI {
			return false
		}
	case SpaceMNI:
		if m.Space != catalog.SpaceMNI {
			return false
		}
	}
	return true
}

func update(p catalog.Pair, category, metricName string, fn func(m *catalog.Metric)) bool {
	ref, ok := p.Find(category, metricName)
	if !ok {
		return false
	}
	fn(ref.Metric())
	return true
}

// SetSelected sets is_selected on one metric. It does not touch is_required.
func SetSelected(p catalog.Pair, category, metricName string, selected bool) bool {
	return update(p, category, metricName, func(m *catalog.Metric) { m.IsSelected = selected })
}

// SetRequired sets is_required on one metric. Callers select the metric first.
func SetRequired(p catalog.Pair, category, metricName string, required bool) bool {
	return update(p, category, metricName, func(m *catalog.Metric) { m.IsRequired = required })
}

// SetFilterValue1 sets the lower (or only) filter bound.
func SetFilterValue1(p catalog.Pair, category, metricName string, v any) bool {
	return update(p, category, metricName, func(m *catalog.Metric) { m.FilterValue1 = v })
}

// SetFilterValue2 sets the upper filter bound.
func SetFilterValue2(p catalog.Pair, category, metricName string, v any) bool {
	return update(p, category, metricName, func(m *catalog.Metric) { m.FilterValue2 = v })
}

// scope returns the metric lists a bulk edit applies to: one subcategory when
// named, else every subcategory of the category in both halves.
func scope(p catalog.Pair, category, subcategory string) [][]catalog.Metric {
	if subcategory != "" {
		ms, ok := p.Subcategory(category, subcategory)
		if !ok {
			return nil
		}
		return [][]catalog.Metric{ms}
	}
	return p.Category(category)
}

func bulk(p catalog.Pair, category, subcategory string, fn func(m *catalog.Metric)) int {
	n := 0
	for _, ms := range scope(p, category, subcategory) {
		for i := range ms {
			fn(&ms[i])
			n++
		}
	}
	return n
}

// SetSelectedAll selects every metric in scope that the filter admits and
// returns how many were touched.
func SetSelectedAll(p catalog.Pair, category, subcategory string, f ViewFilter) int {
	n := 0
	bulk(p, category, subcategory, func(m *catalog.Metric) {
		if !f.Admits(*m) {
			return
		}
		m.IsSelected = true
		n++
	})
	return n
}

// ResetSelectedAll deselects every metric in scope regardless of the view.
// Deselected metrics also lose is_required.
func ResetSelectedAll(p catalog.Pair, category, subcategory string) int {
	return bulk(p, category, subcategory, func(m *catalog.Metric) {
		m.IsSelected = false
		m.IsRequired = false
	})
}

// SetRequiredAll marks every selected metric in scope as required.
func SetRequiredAll(p catalog.Pair, category, subcategory string) int {
	n := 0
	bulk(p, category, subcategory, func(m *catalog.Metric) {
		if !m.IsSelected {
			return
		}
		m.IsRequired = true
		n++
	})
	return n
}

// ResetRequiredAll clears is_required across the scope.
func ResetRequiredAll(p catalog.Pair, category, subcategory string) int {
	return bulk(p, category, subcategory, func(m *catalog.Metric) { m.IsRequired = false })
}

// namesInScope lists metric names a bulk edit touches.
func namesInScope(p catalog.Pair, category, subcategory string, keep func(m catalog.Metric) bool) []string {
	var out []string
	for _, ms := range scope(p, category, subcategory) {
		for _, m := range ms {
			if keep(m) {
				out = append(out, m.MetricName)
			}
		}
	}
	return out
}
