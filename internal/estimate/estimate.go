package estimate

import "github.com/npnl/enigma-request/internal/catalog"

const (
	sessionBaseline = "ses-1"
	sessionFollowUp = "ses-2"
)

// Query is the row-count request body.
type Query struct {
	Timepoint       catalog.Timepoint `json:"timepoint"`
	RequiredMetrics []string          `json:"required_metrics"`
	OrGroups        [][]string        `json:"or_groups"`
}

// Result is the row-count response body.
type Result struct {
	Count           int            `json:"count"`
	TotalSites      int            `json:"total_sites"`
	SessionsPerSite map[string]int `json:"sessions_per_site"`
}

// Count returns the number of rows matching the selection. Any timepoint
// other than baseline is treated as multi.
func Count(rows []Row, required []string, groups [][]string, tp catalog.Timepoint) int {
	return len(Match(rows, required, groups, tp))
}

// Estimate counts matching rows and breaks them down by site.
func Estimate(rows []Row, q Query) Result {
	matched := Match(rows, q.RequiredMetrics, q.OrGroups, q.Timepoint)
	res := Result{Count: len(matched), SessionsPerSite: map[string]int{}}
	for _, r := range matched {
		if r.Site == "" {
			continue
		}
		res.SessionsPerSite[r.Site]++
	}
	res.TotalSites = len(res.SessionsPerSite)
	return res
}

// Match returns the rows Count counts.
//
// Without constraints only the timepoint applies. With constraints a row must
// have every required column, at least one column of every non-empty group
// and both identifiers. For multi, rows are counted only for subjects that
// have both the baseline and the follow-up session after filtering.
func Match(rows []Row, required []string, groups [][]string, tp catalog.Timepoint) []Row {
	groups = nonEmpty(groups)
	constrained := len(required) > 0 || len(groups) > 0
	var kept []Row
	for _, r := range rows {
		if constrained && !satisfies(r, required, groups) {
			continue
		}
		kept = append(kept, r)
	}

	if tp == catalog.Baseline {
		var out []Row
		for _, r := range kept {
			if r.Session == sessionBaseline {
				out = append(out, r)
			}
		}
		return out
	}

	var window []Row
	for _, r := range kept {
		if r.Session == sessionBaseline || r.Session == sessionFollowUp {
			window = append(window, r)
		}
	}
	if !constrained {
		return window
	}

	type sessions struct{ base, follow bool }
	bySubject := map[string]*sessions{}
	for _, r := range window {
		s := bySubject[r.Subject]
		if s == nil {
			s = &sessions{}
			bySubject[r.Subject] = s
		}
		if r.Session == sessionBaseline {
			s.base = true
		} else {
			s.follow = true
		}
	}
	var out []Row
	for _, r := range window {
		if s := bySubject[r.Subject]; s.base && s.follow {
			out = append(out, r)
		}
	}
	return out
}

// nonEmpty drops groups that are still being edited and have no members.
func nonEmpty(groups [][]string) [][]string {
	var out [][]string
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, g)
		}
	}
	return out
}

func satisfies(r Row, required []string, groups [][]string) bool {
	if r.Subject == "" || r.Session == "" {
		return false
	}
	for _, col := range required {
		if !r.Has(col) {
			return false
		}
	}
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		hit := false
		for _, col := range g {
			if r.Has(col) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}
