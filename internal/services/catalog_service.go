package services

import (
	"errors"
	"io/fs"
	"sync"

	"github.com/npnl/enigma-request/internal/catalog"
)

// CatalogLoader produces the split metric catalog, typically catalog.LoadFile
// bound to the configured path.
type CatalogLoader func() (catalog.Pair, error)

type CatalogService struct {
	load CatalogLoader

	mu     sync.Mutex
	pair   catalog.Pair
	loaded bool
}

func NewCatalogService(load CatalogLoader) *CatalogService {
	return &CatalogService{load: load}
}

// Catalogs returns a fresh copy of the catalog for each caller. Only a
// successful load is kept; a failed one is retried on the next call.
func (s *CatalogService) Catalogs() (catalog.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		if s.load == nil {
			return catalog.Pair{}, NewInvalidError("metrics source not configured")
		}
		pair, err := s.load()
		if err != nil {
			return catalog.Pair{}, sourceError(err)
		}
		s.pair, s.loaded = pair, true
	}
	return s.pair.Clone(), nil
}

// sourceError reports a missing data file as not found.
func sourceError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return NewNotFoundError("File not found")
	}
	return err
}
