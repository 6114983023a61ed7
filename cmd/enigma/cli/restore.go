package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/npnl/enigma-request/internal/catalog"
	"github.com/npnl/enigma-request/internal/reqdoc"
)

var (
	restoreMetrics string
	restoreOut     string
)

var restoreCmd = &cobra.Command{
	Use:   "restore <state-file>",
	Short: "Reconcile a saved request against the current metrics catalog",
	Long:  "Loads a state file, a request document or a record saved from `requests get`, drops metrics the catalog no longer has and prints the selection that remains. With --out the reconciled selection is written back as a fresh state file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		restored, err := restoreState(args[0], restoreMetrics)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprint(cmd.OutOrStdout(), renderRestored(restored)); err != nil {
			return err
		}
		if restoreOut == "" {
			return nil
		}
		doc, err := reqdoc.Encode(restored.Catalogs, restored.OrGroups, reqdoc.Options{
			Timepoint:      restored.Timepoint,
			Notes:          restored.Notes,
			ProposalStatus: restored.ProposalStatus,
			Requestor:      restored.Requestor,
		})
		if err != nil {
			return err
		}
		data, err := reqdoc.NewStateFile(doc).Marshal()
		if err != nil {
			return err
		}
		if err := os.WriteFile(restoreOut, data, 0o644); err != nil {
			return fmt.Errorf("write state file: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), checkMark()+" wrote "+restoreOut)
		return nil
	},
}

func renderRestored(r *reqdoc.Restored) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Restored selection") + "\n")
	b.WriteString(keyValue("Timepoint", string(r.Timepoint)) + "\n")
	b.WriteString(keyValue("View", string(r.ViewMode)) + "\n")
	if r.ProposalStatus != "" {
		b.WriteString(keyValue("Proposal", r.ProposalStatus) + "\n")
	}

	section := func(title string, c catalog.Catalog) {
		var required, optional []string
		c.Walk(func(_, _ string, m *catalog.Metric) bool {
			if !m.IsSelected {
				return true
			}
			label := m.DisplayName()
			if !catalog.IsUnset(m.FilterValue1) || !catalog.IsUnset(m.FilterValue2) {
				label += dimStyle.Render(fmt.Sprintf(" [%v, %v]", orBlank(m.FilterValue1), orBlank(m.FilterValue2)))
			}
			if m.IsRequired {
				required = append(required, label)
			} else {
				optional = append(optional, label)
			}
			return true
		})
		b.WriteString(sectionStyle.Render(title) + "\n")
		if len(required)+len(optional) == 0 {
			b.WriteString(mutedStyle.Render("  nothing selected") + "\n")
			return
		}
		for _, l := range required {
			b.WriteString("  " + bullet(l+" "+successStyle.Render("required")) + "\n")
		}
		for _, l := range optional {
			b.WriteString("  " + bullet(l) + "\n")
		}
	}
	section("Behavioral", r.Catalogs.Behavioral)
	section("Imaging", r.Catalogs.Imaging)

	if len(r.OrGroupsSummary) > 0 {
		var groups []string
		for i, g := range r.OrGroupsSummary {
			names := make([]string, len(g))
			for j, m := range g {
				names[j] = m.DisplayName
			}
			groups = append(groups, fmt.Sprintf("%d: %s", i+1, strings.Join(names, " OR ")))
		}
		b.WriteString(boxStyle.Render(sectionStyle.Render("OR groups")+"\n"+strings.Join(groups, "\n")) + "\n")
	}
	if r.Notes != "" {
		b.WriteString(keyValue("Notes", r.Notes) + "\n")
	}
	return b.String()
}

func orBlank(v any) any {
	if catalog.IsUnset(v) {
		return "-"
	}
	return v
}

func init() {
	restoreCmd.Flags().StringVar(&restoreMetrics, "metrics", "", "metrics catalog (default data.metrics_file)")
	restoreCmd.Flags().StringVarP(&restoreOut, "out", "o", "", "write the reconciled selection to this state file")
}
