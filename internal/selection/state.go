package selection

import (
	"slices"

	"github.com/npnl/enigma-request/internal/catalog"
	"github.com/npnl/enigma-request/internal/estimate"
)

// State owns one requester's catalog pair, OR-groups, timepoint and view. It is
// not safe for concurrent use; a single caller drives every transition.
//
// State keeps two invariants the package-level functions leave to the caller:
// a metric in any OR-group is never required, and a required metric is always
// selected.
type State struct {
	Catalogs  catalog.Pair
	Timepoint catalog.Timepoint
	Filter    ViewFilter

	groups [][]string
}

// NewState wraps pair with the default view and a baseline timepoint.
func NewState(pair catalog.Pair) *State {
	return &State{Catalogs: pair, Timepoint: catalog.Baseline, Filter: DefaultFilter}
}

// Restore replaces the catalogs and groups, typically with the result of
// decoding a request document.
func (s *State) Restore(pair catalog.Pair, groups [][]string, view ViewMode) {
	s.Catalogs = pair
	s.groups = nil
	for _, g := range groups {
		if len(g) > 0 {
			s.groups = append(s.groups, slices.Clone(g))
		}
	}
	s.Filter.View = view
	if view == ViewBasic {
		s.groups = nil
	}
}

func (s *State) SetSelected(category, metricName string, selected bool) bool {
	return SetSelected(s.Catalogs, category, metricName, selected)
}

// SetRequired marks a metric required or optional. Marking it required also
// selects it and takes it out of every OR-group.
func (s *State) SetRequired(category, metricName string, required bool) bool {
	ref, ok := s.Catalogs.Find(category, metricName)
	if !ok {
		return false
	}
	m := ref.Metric()
	if required {
		s.leaveGroups(metricName)
		m.IsSelected = true
	}
	m.IsRequired = required
	return true
}

func (s *State) SetFilterValue1(category, metricName string, v any) bool {
	return SetFilterValue1(s.Catalogs, category, metricName, v)
}

func (s *State) SetFilterValue2(category, metricName string, v any) bool {
	return SetFilterValue2(s.Catalogs, category, metricName, v)
}

// SetSelectedAll bulk-selects under the current view filter.
func (s *State) SetSelectedAll(category, subcategory string) int {
	return SetSelectedAll(s.Catalogs, category, subcategory, s.Filter)
}

// ResetSelectedAll bulk-deselects and drops the affected metrics from groups.
func (s *State) ResetSelectedAll(category, subcategory string) int {
	for _, name := range namesInScope(s.Catalogs, category, subcategory, func(catalog.Metric) bool { return true }) {
		s.leaveGroups(name)
	}
	return ResetSelectedAll(s.Catalogs, category, subcategory)
}

// SetRequiredAll marks every selected metric in scope required, moving any
// grouped ones out of their groups first.
func (s *State) SetRequiredAll(category, subcategory string) int {
	for _, name := range namesInScope(s.Catalogs, category, subcategory, func(m catalog.Metric) bool { return m.IsSelected }) {
		s.leaveGroups(name)
	}
	return SetRequiredAll(s.Catalogs, category, subcategory)
}

func (s *State) ResetRequiredAll(category, subcategory string) int {
	return ResetRequiredAll(s.Catalogs, category, subcategory)
}

// Deselect clears a metric entirely: unselected, not required and in no group.
func (s *State) Deselect(category, metricName string) bool {
	ref, ok := s.Catalogs.Find(category, metricName)
	if !ok {
		return false
	}
	s.leaveGroups(metricName)
	m := ref.Metric()
	m.IsSelected = false
	m.IsRequired = false
	return true
}

// MoveToRequired is the drop target for the required column.
func (s *State) MoveToRequired(category, metricName string) bool {
	return s.SetRequired(category, metricName, true)
}

// MoveToOptional leaves every group and keeps the metric selected.
func (s *State) MoveToOptional(category, metricName string) bool {
	ref, ok := s.Catalogs.Find(category, metricName)
	if !ok {
		return false
	}
	s.leaveGroups(metricName)
	m := ref.Metric()
	m.IsSelected = true
	m.IsRequired = false
	return true
}

// SetViewMode switches between basic and advanced. Basic view has no OR-group
// editor, so switching to it discards the groups.
func (s *State) SetViewMode(v ViewMode) {
	s.Filter.View = v
	if v == ViewBasic {
		s.groups = nil
	}
}

func (s *State) SetSpaceMode(sp SpaceMode) { s.Filter.Space = sp }

func (s *State) SetTimepoint(tp catalog.Timepoint) { s.Timepoint = tp }

// RequiredMetricNames lists required metrics in catalog order, behavioral
// first.
func (s *State) RequiredMetricNames() []string {
	var out []string
	for _, c := range []catalog.Catalog{s.Catalogs.Behavioral, s.Catalogs.Imaging} {
		c.Walk(func(_, _ string, m *catalog.Metric) bool {
			if m.IsSelected && m.IsRequired {
				out = append(out, m.MetricName)
			}
			return true
		})
	}
	return out
}

// RowCountQuery builds the estimator input for the current selection.
func (s *State) RowCountQuery() estimate.Query {
	return estimate.Query{
		Timepoint:       s.Timepoint,
		RequiredMetrics: s.RequiredMetricNames(),
		OrGroups:        s.Groups(),
	}
}
