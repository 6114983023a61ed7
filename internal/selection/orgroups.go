package selection

import "slices"

// Groups returns a copy of the non-empty OR-groups.
func (s *State) Groups() [][]string {
	out := make([][]string, 0, len(s.groups))
	for _, g := range s.groups {
		if len(g) > 0 {
			out = append(out, slices.Clone(g))
		}
	}
	return out
}

// GroupCount includes groups that are still empty.
func (s *State) GroupCount() int { return len(s.groups) }

// AddGroup appends an empty group and returns its index. When the last group
// is still empty it is reused instead.
func (s *State) AddGroup() int {
	if n := len(s.groups); n > 0 && len(s.groups[n-1]) == 0 {
		return n - 1
	}
	s.groups = append(s.groups, nil)
	return len(s.groups) - 1
}

// RemoveGroup drops group i. Its members stay selected as optional metrics.
func (s *State) RemoveGroup(i int) bool {
	if !s.validGroup(i) {
		return false
	}
	s.groups = slices.Delete(s.groups, i, i+1)
	return true
}

// AddToGroup puts a metric into group i, selecting it and clearing its
// required flag. Adding a member twice is a no-op.
func (s *State) AddToGroup(i int, category, metricName string) bool {
	if !s.validGroup(i) {
		return false
	}
	ref, ok := s.Catalogs.Find(category, metricName)
	if !ok {
		return false
	}
	m := ref.Metric()
	m.IsSelected = true
	m.IsRequired = false
	if !slices.Contains(s.groups[i], metricName) {
		s.groups[i] = append(s.groups[i], metricName)
	}
	return true
}

// RemoveFromGroup takes a metric out of group i, deleting the group if it
// becomes empty. The metric stays selected.
func (s *State) RemoveFromGroup(i int, metricName string) bool {
	if !s.validGroup(i) {
		return false
	}
	j := slices.Index(s.groups[i], metricName)
	if j < 0 {
		return false
	}
	s.groups[i] = slices.Delete(s.groups[i], j, j+1)
	if len(s.groups[i]) == 0 {
		s.groups = slices.Delete(s.groups, i, i+1)
	}
	return true
}

// MoveToGroup moves a metric from group from to group to.
func (s *State) MoveToGroup(from, to int, category, metricName string) bool {
	if from == to || !s.validGroup(from) || !s.validGroup(to) {
		return false
	}
	if !slices.Contains(s.groups[from], metricName) {
		return false
	}
	if !s.AddToGroup(to, category, metricName) {
		return false
	}
	return s.RemoveFromGroup(from, metricName)
}

// InGroup reports whether metricName belongs to any group.
func (s *State) InGroup(metricName string) bool {
	for _, g := range s.groups {
		if slices.Contains(g, metricName) {
			return true
		}
	}
	return false
}

// leaveGroups removes metricName from every group and prunes the groups it
// empties.
func (s *State) leaveGroups(metricName string) {
	kept := s.groups[:0]
	for _, g := range s.groups {
		j := slices.Index(g, metricName)
		if j < 0 {
			kept = append(kept, g)
			continue
		}
		g = slices.Delete(g, j, j+1)
		if len(g) > 0 {
			kept = append(kept, g)
		}
	}
	s.groups = kept
}

func (s *State) validGroup(i int) bool { return i >= 0 && i < len(s.groups) }
