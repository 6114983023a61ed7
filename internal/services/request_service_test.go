package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/npnl/enigma-request/internal/catalog"
	"github.com/npnl/enigma-request/internal/reqdoc"
)

type requestStubStore struct {
	items map[string]*DataRequest
}

func (s *requestStubStore) AddRequest(r *DataRequest) error {
	if s.items == nil {
		s.items = map[string]*DataRequest{}
	}
	cp := *r
	s.items[r.FileName] = &cp
	return nil
}

func (s *requestStubStore) ListRequests() ([]*DataRequest, error) {
	out := make([]*DataRequest, 0, len(s.items))
	for _, r := range s.items {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *requestStubStore) GetRequest(fileName string) (*DataRequest, error) {
	r, ok := s.items[fileName]
	if !ok {
		return nil, NewNotFoundError("request not found")
	}
	cp := *r
	return &cp, nil
}

type adminSet map[AdminScope][]string

func (a adminSet) IsAdmin(scope AdminScope, email string) (bool, error) {
	for _, e := range a[scope] {
		if strings.EqualFold(e, email) {
			return true, nil
		}
	}
	return false, nil
}

func sampleDoc(name, email string) reqdoc.Document {
	return reqdoc.Document{
		Requestor: &reqdoc.Requestor{Name: name, Email: email},
		Timepoint: catalog.Baseline,
		Behavior: reqdoc.Section{
			Required: []reqdoc.MetricEntry{{MetricName: "AGE", Category: "Demographics"}},
			Optional: []reqdoc.MetricEntry{},
		},
	}
}

func TestRequestSubmit(t *testing.T) {
	store := &requestStubStore{}
	n := &captureNotifier{}
	svc := NewRequestService(store, adminSet{}, n, "admin@npnl.org", nil)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC) }
	svc.idGen = func() string { return "abcd1234" }

	req, err := svc.Submit(context.Background(), sampleDoc(" Ada ", "ada@usc.edu"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req.FileName != "data-request-20250601T123000Z-abcd1234.json" {
		t.Fatalf("unexpected file name %q", req.FileName)
	}
	if req.Name != "Ada" || req.Status != reqdoc.StatusPending || req.Data.Requestor.Name != "Ada" {
		t.Fatalf("unexpected request %+v", req)
	}
	if _, ok := store.items[req.FileName]; !ok {
		t.Fatalf("request not stored")
	}
	if len(n.sent) != 1 || n.sent[0].Subject != "[NPNL Enigma] New Data Request from Ada" || !strings.Contains(n.sent[0].Body, req.FileName) {
		t.Fatalf("unexpected notification %+v", n.sent)
	}
}

func TestRequestSubmitValidation(t *testing.T) {
	svc := NewRequestService(&requestStubStore{}, adminSet{}, nil, "", nil)
	cases := []reqdoc.Document{
		{},
		sampleDoc("", "ada@usc.edu"),
		sampleDoc("Ada", "ada@usc"),
		{Requestor: &reqdoc.Requestor{Name: "Ada", Email: "ada@usc.edu"}},
	}
	for i, doc := range cases {
		_, err := svc.Submit(context.Background(), doc)
		expectCode(t, err, ErrorInvalid)
		if i == 3 && !strings.Contains(err.Error(), "selected") {
			t.Fatalf("expected nothing-selected message, got %v", err)
		}
	}
}

func TestRequestSubmitSurvivesNotifierFailure(t *testing.T) {
	n := &captureNotifier{err: errors.New("smtp down")}
	svc := NewRequestService(&requestStubStore{}, adminSet{}, n, "admin@npnl.org", nil)
	if _, err := svc.Submit(context.Background(), sampleDoc("Ada", "ada@usc.edu")); err != nil {
		t.Fatalf("notification failure must not fail submit: %v", err)
	}
}

func TestRequestListAndGet(t *testing.T) {
	store := &requestStubStore{}
	admins := adminSet{ScopeDataRequest: {"dr@npnl.org"}, ScopeDirectory: {"dir@npnl.org"}}
	svc := NewRequestService(store, admins, nil, "", nil)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return at }
		idv := id
		svc.idGen = func() string { return idv }
		if _, err := svc.Submit(context.Background(), sampleDoc("Ada", "ada@usc.edu")); err != nil {
			t.Fatal(err)
		}
	}

	_, err := svc.List(Viewer{Email: "ada@usc.edu"})
	expectCode(t, err, ErrorForbidden)
	_, err = svc.List(Viewer{})
	expectCode(t, err, ErrorUnauthorized)

	list, err := svc.List(Viewer{Email: "DR@npnl.org"})
	if err != nil || len(list) != 3 || !strings.HasSuffix(list[0].FileName, "-c.json") {
		t.Fatalf("list = %+v err=%v", list, err)
	}
	got, err := svc.Get(Viewer{Email: "dir@npnl.org"}, list[2].FileName)
	if err != nil || got.FileName != list[2].FileName {
		t.Fatalf("get = %+v err=%v", got, err)
	}
	_, err = svc.Get(Viewer{Email: "dir@npnl.org"}, "../etc/passwd")
	expectCode(t, err, ErrorInvalid)
	_, err = svc.Get(Viewer{Email: "dir@npnl.org"}, "missing.json")
	expectCode(t, err, ErrorNotFound)
}
