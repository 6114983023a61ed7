package services

import (
	"strings"
	"sync"

	"github.com/npnl/enigma-request/internal/catalog"
	"github.com/npnl/enigma-request/internal/estimate"
)

type TableLoader func() (*estimate.Table, error)

type RowCountService struct {
	load TableLoader

	mu    sync.Mutex
	table *estimate.Table
}

func NewRowCountService(load TableLoader) *RowCountService {
	return &RowCountService{load: load}
}

// loadTable keeps the first successful load; failures are retried.
func (s *RowCountService) loadTable() (*estimate.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table != nil {
		return s.table, nil
	}
	if s.load == nil {
		return nil, NewInvalidError("boolean data source not configured")
	}
	t, err := s.load()
	if err != nil {
		return nil, sourceError(err)
	}
	s.table = t
	return t, nil
}

// Estimate counts matching rows. An empty timepoint means baseline.
func (s *RowCountService) Estimate(q estimate.Query) (*estimate.Result, error) {
	tp := strings.TrimSpace(string(q.Timepoint))
	if tp == "" {
		q.Timepoint = catalog.Baseline
	} else {
		parsed, err := catalog.ParseTimepoint(tp)
		if err != nil {
			return nil, NewInvalidError("invalid timepoint")
		}
		q.Timepoint = parsed
	}
	t, err := s.loadTable()
	if err != nil {
		return nil, err
	}
	res := estimate.Estimate(t.Rows, q)
	return &res, nil
}

func (s *RowCountService) Records() ([]map[string]any, error) {
	t, err := s.loadTable()
	if err != nil {
		return nil, err
	}
	return t.Records(), nil
}
