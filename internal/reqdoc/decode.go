package reqdoc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/npnl/enigma-request/internal/catalog"
	"github.com/npnl/enigma-request/internal/selection"
)

// MetricSummary is the display projection of an OR-group member.
type MetricSummary struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	MetricName  string `json:"metric_name"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	IsRequired  bool   `json:"is_required"`
	InOrGroup   bool   `json:"in_or_group"`
}

// Restored is a document reconciled against a live catalog.
type Restored struct {
	Timepoint       catalog.Timepoint  `json:"timepoint"`
	Catalogs        catalog.Pair       `json:"catalogs"`
	OrGroups        [][]string         `json:"or_groups"`
	Requestor       *Requestor         `json:"requestor,omitempty"`
	OrGroupsSummary [][]MetricSummary  `json:"or_groups_summary"`
	Notes           string             `json:"notes"`
	ProposalStatus  string             `json:"proposal_status"`
	ViewMode        selection.ViewMode `json:"view_mode"`
}

// Apply loads the restored selection into s.
func (r *Restored) Apply(s *selection.State) {
	s.Restore(r.Catalogs, r.OrGroups, r.ViewMode)
	s.Timepoint = r.Timepoint
}

// Parse reads a document from its raw form, a {"request": ...} state file
// or a {"data": ...} stored request record.
func Parse(data []byte) (Document, error) {
	var wrapper struct {
		Request json.RawMessage `json:"request"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return Document{}, fmt.Errorf("decode request document: %w", err)
	}
	body := data
	switch {
	case present(wrapper.Request):
		body = wrapper.Request
	case present(wrapper.Data):
		body = wrapper.Data
	}
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return Document{}, fmt.Errorf("decode request document: %w", err)
	}
	return doc, nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Decode parses data and reconciles it against live. Only malformed JSON is
// an error.
func Decode(data []byte, live catalog.Pair) (*Restored, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Restore(doc, live), nil
}

// Restore applies doc to a reset copy of live; live itself is not modified.
// Entries naming metrics the catalog does not have are ignored.
func Restore(doc Document, live catalog.Pair) *Restored {
	pair := live.Clone()
	pair.Reset()

	for _, e := range doc.Behavior.Required {
		apply(pair.Behavioral, e, true)
	}
	for _, e := range doc.Behavior.Optional {
		apply(pair.Behavioral, e, false)
	}
	for _, e := range doc.Imaging.Required {
		apply(pair.Imaging, e, true)
	}
	for _, e := range doc.Imaging.Optional {
		apply(pair.Imaging, e, false)
	}

	r := &Restored{
		Catalogs:       pair,
		Requestor:      doc.Requestor,
		Notes:          doc.Notes,
		ProposalStatus: doc.ProposalStatus,
		ViewMode:       selection.ViewBasic,
	}
	for _, g := range doc.OrGroups {
		var names []string
		var summary []MetricSummary
		for _, e := range g.Metrics {
			if !apply(pair.Behavioral, e, false) && !apply(pair.Imaging, e, false) {
				continue
			}
			ref, _ := pair.Find(e.Category, e.MetricName)
			m := ref.Metric()
			names = append(names, e.MetricName)
			summary = append(summary, MetricSummary{
				Category:    e.Category,
				Subcategory: ref.Subcategory,
				MetricName:  e.MetricName,
				DisplayName: firstNonEmpty(e.DisplayName, m.DisplayName()),
				Type:        firstNonEmpty(e.Type, string(m.VariableType)),
				InOrGroup:   true,
			})
		}
		if len(names) == 0 {
			continue
		}
		r.OrGroups = append(r.OrGroups, names)
		r.OrGroupsSummary = append(r.OrGroupsSummary, summary)
	}
	if len(r.OrGroups) > 0 {
		r.ViewMode = selection.ViewAdvanced
	}

	tp, err := catalog.ParseTimepoint(string(doc.Timepoint))
	if err != nil {
		tp = catalog.Baseline
	}
	r.Timepoint = tp
	return r
}

func apply(c catalog.Catalog, e MetricEntry, required bool) bool {
	ref, ok := c.Find(e.Category, e.MetricName)
	if !ok {
		return false
	}
	m := ref.Metric()
	m.IsSelected = true
	m.IsRequired = required
	if e.Value1 != nil {
		m.FilterValue1 = e.Value1
	}
	if e.Value2 != nil {
		m.FilterValue2 = e.Value2
	}
	return true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
