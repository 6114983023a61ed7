package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/npnl/enigma-request/internal/services"
)

type directoryStoreAdapter struct{ store Store }

func newDirectoryStoreAdapter(store Store) services.DirectoryStore {
	return &directoryStoreAdapter{store: store}
}

func (a *directoryStoreAdapter) ListCollaborators() ([]*services.Collaborator, error) {
	recs, err := a.store.ListCollaborators()
	if err != nil {
		return nil, err
	}
	out := make([]*services.Collaborator, 0, len(recs))
	for _, rec := range recs {
		var c services.Collaborator
		if err := json.Unmarshal(rec.Doc, &c); err != nil {
			return nil, fmt.Errorf("decode collaborator %d: %w", rec.Index, err)
		}
		c.Index = rec.Index
		out = append(out, &c)
	}
	return out, nil
}

func (a *directoryStoreAdapter) SaveCollaborator(c *services.Collaborator) error {
	if c == nil {
		return services.NewInvalidError("collaborator required")
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return a.store.UpsertCollaborator(&CollaboratorRecord{
		Index:        c.Index,
		PrimaryEmail: strings.ToLower(strings.TrimSpace(c.PrimaryEmail)),
		Doc:          doc,
	})
}

func (a *directoryStoreAdapter) DeleteCollaborator(index int) error {
	ok, err := a.store.DeleteCollaborator(index)
	if err != nil {
		return err
	}
	if !ok {
		return services.NewNotFoundError("Collaborator not found")
	}
	return nil
}

func (a *directoryStoreAdapter) ListAdmins(scope services.AdminScope) ([]string, error) {
	return a.store.ListAdmins(string(scope))
}

func (a *directoryStoreAdapter) AddAdmin(scope services.AdminScope, email string) error {
	return a.store.AddAdmin(string(scope), email)
}

func (a *directoryStoreAdapter) DeleteAdmin(scope services.AdminScope, email string) error {
	ok, err := a.store.DeleteAdmin(string(scope), email)
	if err != nil {
		return err
	}
	if !ok {
		return services.NewNotFoundError("Admin not found")
	}
	return nil
}

var _ services.DirectoryStore = (*directoryStoreAdapter)(nil)
