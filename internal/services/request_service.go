package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/npnl/enigma-request/internal/reqdoc"
	"github.com/npnl/enigma-request/internal/utils"
)

type RequestStore interface {
	AddRequest(r *DataRequest) error
	ListRequests() ([]*DataRequest, error)
	GetRequest(fileName string) (*DataRequest, error)
}

// AdminChecker answers whether an email holds admin rights in a scope.
type AdminChecker interface {
	IsAdmin(scope AdminScope, email string) (bool, error)
}

type RequestService struct {
	store      RequestStore
	admins     AdminChecker
	notifier   Notifier
	adminEmail string
	log        *zap.Logger
	now        func() time.Time
	idGen      func() string
}

func NewRequestService(store RequestStore, admins AdminChecker, notifier Notifier, adminEmail string, log *zap.Logger) *RequestService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RequestService{
		store:      store,
		admins:     admins,
		notifier:   notifier,
		adminEmail: strings.TrimSpace(adminEmail),
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		idGen:      func() string { return uuid.NewString()[:8] },
	}
}

// Submit stores a new request and notifies the admin address.
func (s *RequestService) Submit(ctx context.Context, doc reqdoc.Document) (*DataRequest, error) {
	if doc.Requestor == nil || strings.TrimSpace(doc.Requestor.Name) == "" {
		return nil, NewInvalidError("requestor name required")
	}
	name := strings.TrimSpace(doc.Requestor.Name)
	email := strings.TrimSpace(doc.Requestor.Email)
	if !utils.IsValidRequestorEmail(email) {
		return nil, NewInvalidError("invalid email address")
	}
	if doc.Empty() {
		return nil, NewInvalidError(reqdoc.ErrNothingSelected.Error())
	}
	doc.Requestor = &reqdoc.Requestor{Name: name, Email: email}
	now := s.now()
	req := &DataRequest{
		FileName:       fmt.Sprintf("data-request-%s-%s.json", now.Format("20060102T150405Z"), s.idGen()),
		Time:           now,
		Name:           name,
		Email:          email,
		Data:           doc,
		Status:         reqdoc.StatusPending,
		ProposalStatus: doc.ProposalStatus,
	}
	if err := s.store.AddRequest(req); err != nil {
		return nil, err
	}
	s.log.Info("data request submitted",
		zap.String("file_name", req.FileName),
		zap.String("email", email),
		zap.Int("metrics", len(doc.MetricNames())),
	)
	s.notifyAdmin(ctx, req)
	return req, nil
}

// A failed notification does not fail the submission.
func (s *RequestService) notifyAdmin(ctx context.Context, req *DataRequest) {
	if s.notifier == nil || s.adminEmail == "" {
		return
	}
	msg := Message{
		To:      s.adminEmail,
		Subject: "[NPNL Enigma] New Data Request from " + req.Name,
		Body: fmt.Sprintf("Hello,\n\n%s has submitted a new data request.\n"+
			"Please refer to '%s' in the data request console for details.\n\n"+
			"Contact: %s\n", req.Name, req.FileName, req.Email),
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.log.Warn("request notification failed", zap.String("file_name", req.FileName), zap.Error(err))
	}
}

// List returns every stored request, newest first.
func (s *RequestService) List(viewer Viewer) ([]*DataRequest, error) {
	if err := s.requireAdmin(viewer); err != nil {
		return nil, err
	}
	list, err := s.store.ListRequests()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Time.Equal(list[j].Time) {
			return list[i].FileName > list[j].FileName
		}
		return list[i].Time.After(list[j].Time)
	})
	return list, nil
}

func (s *RequestService) Get(viewer Viewer, fileName string) (*DataRequest, error) {
	if err := s.requireAdmin(viewer); err != nil {
		return nil, err
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" || strings.ContainsAny(fileName, `/\`) {
		return nil, NewInvalidError("invalid file name")
	}
	return s.store.GetRequest(fileName)
}

// Either admin scope may read submitted requests.
func (s *RequestService) requireAdmin(viewer Viewer) error {
	if strings.TrimSpace(viewer.Email) == "" {
		return NewUnauthorizedError("authentication required")
	}
	if s.admins == nil {
		return NewForbiddenError("admin access required")
	}
	for _, scope := range []AdminScope{ScopeDataRequest, ScopeDirectory} {
		ok, err := s.admins.IsAdmin(scope, viewer.Email)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return NewForbiddenError("admin access required")
}
