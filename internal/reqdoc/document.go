// Package reqdoc converts a metric selection to and from the transportable
// request document used for state files and submitted requests.
package reqdoc

import (
	"encoding/json"
	"time"

	"github.com/npnl/enigma-request/internal/catalog"
)

// StatusPending is the status written into state files and new submissions.
const StatusPending = "pending"

type Requestor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// MetricEntry is one metric as it appears in a document. Value1 and Value2 are
// nil when the metric carries no filter bound.
type MetricEntry struct {
	MetricName  string `json:"metric_name"`
	DisplayName string `json:"display_name"`
	Value1      any    `json:"value1"`
	Value2      any    `json:"value2"`
	Type        string `json:"type"`
	Category    string `json:"category"`
}

type Section struct {
	Required []MetricEntry `json:"required"`
	Optional []MetricEntry `json:"optional"`
}

type ORGroup struct {
	GroupID int           `json:"group_id"`
	Metrics []MetricEntry `json:"metrics"`
}

// Document is a complete request.
type Document struct {
	Requestor      *Requestor        `json:"requestor,omitempty"`
	Timepoint      catalog.Timepoint `json:"timepoint"`
	Behavior       Section           `json:"behavior"`
	Imaging        Section           `json:"imaging"`
	OrGroups       []ORGroup         `json:"or_groups"`
	Notes          string            `json:"notes"`
	ProposalStatus string            `json:"proposal_status,omitempty"`
}

// Empty reports whether the document selects nothing.
func (d Document) Empty() bool {
	if len(d.Behavior.Required)+len(d.Behavior.Optional)+len(d.Imaging.Required)+len(d.Imaging.Optional) > 0 {
		return false
	}
	for _, g := range d.OrGroups {
		if len(g.Metrics) > 0 {
			return false
		}
	}
	return true
}

// MetricNames lists every metric the document mentions, each once.
func (d Document) MetricNames() []string {
	seen := map[string]bool{}
	var out []string
	add := func(es []MetricEntry) {
		for _, e := range es {
			if !seen[e.MetricName] {
				seen[e.MetricName] = true
				out = append(out, e.MetricName)
			}
		}
	}
	add(d.Behavior.Required)
	add(d.Behavior.Optional)
	add(d.Imaging.Required)
	add(d.Imaging.Optional)
	for _, g := range d.OrGroups {
		add(g.Metrics)
	}
	return out
}

// StateFile is the downloadable wrapper around a document.
type StateFile struct {
	Request Document `json:"request"`
	Status  string   `json:"status"`
}

// NewStateFile wraps doc as a pending state file.
func NewStateFile(doc Document) StateFile {
	return StateFile{Request: doc, Status: StatusPending}
}

// Marshal renders the state file the way it is offered for download.
func (f StateFile) Marshal() ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}

// StateFileName returns the download name for a state file created at t.
func StateFileName(t time.Time) string {
	return "data-request-state-" + t.UTC().Format("2006-01-02T15-04-05") + ".json"
}
