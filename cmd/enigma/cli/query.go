package cli

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/npnl/enigma-request/internal/catalog"
	"github.com/npnl/enigma-request/internal/estimate"
	"github.com/npnl/enigma-request/internal/reqdoc"
	"github.com/npnl/enigma-request/internal/selection"
)

// queryFlags describe a selection either as a saved state file or inline.
type queryFlags struct {
	state     string
	metrics   string
	timepoint string
	required  []string
	orGroups  []string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.state, "state", "", "request state file or submitted document to read the selection from")
	cmd.Flags().StringVar(&f.metrics, "metrics", "", "metrics catalog used to reconcile --state (default data.metrics_file)")
	cmd.Flags().StringVar(&f.timepoint, "timepoint", "", "baseline or multi (overrides the state file)")
	cmd.Flags().StringSliceVar(&f.required, "require", nil, "required metric names")
	cmd.Flags().StringArrayVar(&f.orGroups, "or", nil, "comma separated OR-group, repeatable")
}

// build resolves the flags into an estimator query. A state file is
// reconciled against the catalog so unknown metrics drop out the same way
// they do when the form restores it.
func (f *queryFlags) build() (estimate.Query, error) {
	var q estimate.Query
	if f.state != "" {
		restored, err := restoreState(f.state, f.metrics)
		if err != nil {
			return q, err
		}
		st := selection.NewState(restored.Catalogs)
		restored.Apply(st)
		q = st.RowCountQuery()
	}
	for _, name := range f.required {
		if name = strings.TrimSpace(name); name != "" && !slices.Contains(q.RequiredMetrics, name) {
			q.RequiredMetrics = append(q.RequiredMetrics, name)
		}
	}
	for _, raw := range f.orGroups {
		var group []string
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" && !slices.Contains(q.RequiredMetrics, name) {
				group = append(group, name)
			}
		}
		if len(group) > 0 {
			q.OrGroups = append(q.OrGroups, group)
		}
	}
	if f.timepoint != "" {
		tp, err := catalog.ParseTimepoint(f.timepoint)
		if err != nil {
			return q, err
		}
		q.Timepoint = tp
	}
	if q.Timepoint == "" {
		q.Timepoint = catalog.Baseline
	}
	return q, nil
}

func restoreState(statePath, metricsPath string) (*reqdoc.Restored, error) {
	if metricsPath == "" {
		metricsPath = cfg.Data.MetricsFile
	}
	pair, err := catalog.LoadFile(metricsPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(statePath)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return reqdoc.Decode(data, pair)
}

func renderResult(q estimate.Query, res *estimate.Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Matching rows") + "\n")
	b.WriteString(keyValue("Timepoint", string(q.Timepoint)) + "\n")
	if len(q.RequiredMetrics) > 0 {
		b.WriteString(keyValue("Required", strings.Join(q.RequiredMetrics, ", ")) + "\n")
	}
	for i, g := range q.OrGroups {
		b.WriteString(keyValue(fmt.Sprintf("OR group %d", i+1), strings.Join(g, " | ")) + "\n")
	}
	b.WriteString(keyValue("Count", successStyle.Render(fmt.Sprint(res.Count))) + "\n")
	b.WriteString(keyValue("Sites", fmt.Sprint(res.TotalSites)) + "\n")

	sites := make([]string, 0, len(res.SessionsPerSite))
	for s := range res.SessionsPerSite {
		sites = append(sites, s)
	}
	sort.Strings(sites)
	for _, s := range sites {
		b.WriteString(bullet(fmt.Sprintf("%s %d", s, res.SessionsPerSite[s])) + "\n")
	}
	if res.Count == 0 {
		b.WriteString(warnStyle.Render("No sessions match this selection.") + "\n")
	}
	return b.String()
}
