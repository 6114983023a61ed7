package reqdoc

import (
	"errors"

	"github.com/npnl/enigma-request/internal/catalog"
)

// ErrNothingSelected is returned by Encode when the selection is empty. Its
// message is meant for the requester.
var ErrNothingSelected = errors.New("You haven't selected any data!")

type Options struct {
	Timepoint      catalog.Timepoint
	Notes          string
	ProposalStatus string
	Requestor      *Requestor
}

func entry(m catalog.Metric, category string) MetricEntry {
	e := MetricEntry{
		MetricName:  m.MetricName,
		DisplayName: m.DisplayName(),
		Type:        string(m.VariableType),
		Category:    category,
	}
	if !catalog.IsUnset(m.FilterValue1) {
		e.Value1 = m.FilterValue1
	}
	if !catalog.IsUnset(m.FilterValue2) {
		e.Value2 = m.FilterValue2
	}
	if e.Type == "" {
		e.Type = string(catalog.TypeString)
	}
	return e
}

// Encode builds a document from the selected metrics of pair. Members of an
// OR-group appear only under or_groups, once per group they belong to. Group
// members missing from the catalog are skipped and groups left empty are
// dropped, so group ids run from 1 without gaps.
func Encode(pair catalog.Pair, groups [][]string, opts Options) (Document, error) {
	doc := Document{
		Requestor:      opts.Requestor,
		Timepoint:      opts.Timepoint,
		Behavior:       Section{Required: []MetricEntry{}, Optional: []MetricEntry{}},
		Imaging:        Section{Required: []MetricEntry{}, Optional: []MetricEntry{}},
		OrGroups:       []ORGroup{},
		Notes:          opts.Notes,
		ProposalStatus: opts.ProposalStatus,
	}
	if doc.Timepoint == "" {
		doc.Timepoint = catalog.Baseline
	}

	grouped := map[string]bool{}
	for _, g := range groups {
		var members []MetricEntry
		for _, name := range g {
			ref, ok := pair.FindAny(name)
			if !ok {
				continue
			}
			grouped[name] = true
			members = append(members, entry(*ref.Metric(), ref.Category))
		}
		if len(members) == 0 {
			continue
		}
		doc.OrGroups = append(doc.OrGroups, ORGroup{GroupID: len(doc.OrGroups) + 1, Metrics: members})
	}

	collect := func(c catalog.Catalog, sec *Section) {
		c.Walk(func(cat, _ string, m *catalog.Metric) bool {
			if !m.IsSelected || grouped[m.MetricName] {
				return true
			}
			if m.IsRequired {
				sec.Required = append(sec.Required, entry(*m, cat))
			} else {
				sec.Optional = append(sec.Optional, entry(*m, cat))
			}
			return true
		})
	}
	collect(pair.Behavioral, &doc.Behavior)
	collect(pair.Imaging, &doc.Imaging)

	if doc.Empty() {
		return Document{}, ErrNothingSelected
	}
	return doc, nil
}
