package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/npnl/enigma-request/internal/reqdoc"
	"github.com/npnl/enigma-request/internal/services"
)

type requestStoreAdapter struct{ store Store }

func newRequestStoreAdapter(store Store) services.RequestStore {
	return &requestStoreAdapter{store: store}
}

func (a *requestStoreAdapter) AddRequest(r *services.DataRequest) error {
	if r == nil {
		return services.NewInvalidError("request required")
	}
	body, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("encode request %s: %w", r.FileName, err)
	}
	err = a.store.AddRequest(&RequestRecord{
		FileName:       r.FileName,
		CreatedAt:      r.Time,
		Name:           r.Name,
		Email:          r.Email,
		Status:         r.Status,
		ProposalStatus: r.ProposalStatus,
		Body:           body,
	})
	if errors.Is(err, ErrDuplicate) {
		return services.NewConflictError("request already exists")
	}
	return err
}

func (a *requestStoreAdapter) ListRequests() ([]*services.DataRequest, error) {
	recs, err := a.store.ListRequests()
	if err != nil {
		return nil, err
	}
	out := make([]*services.DataRequest, 0, len(recs))
	for _, rec := range recs {
		r, err := toDataRequest(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (a *requestStoreAdapter) GetRequest(fileName string) (*services.DataRequest, error) {
	rec, err := a.store.GetRequest(fileName)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, services.NewNotFoundError("File not found")
	}
	return toDataRequest(rec)
}

func toDataRequest(rec *RequestRecord) (*services.DataRequest, error) {
	var doc reqdoc.Document
	if len(rec.Body) > 0 {
		if err := json.Unmarshal(rec.Body, &doc); err != nil {
			return nil, fmt.Errorf("decode request %s: %w", rec.FileName, err)
		}
	}
	return &services.DataRequest{
		FileName:       rec.FileName,
		Time:           rec.CreatedAt,
		Name:           rec.Name,
		Email:          rec.Email,
		Data:           doc,
		Status:         rec.Status,
		ProposalStatus: rec.ProposalStatus,
	}, nil
}

var _ services.RequestStore = (*requestStoreAdapter)(nil)
