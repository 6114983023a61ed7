package api

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// RequestRecord is a submitted data request as stored. Body holds the
// request document JSON.
type RequestRecord struct {
	FileName       string
	CreatedAt      time.Time
	Name           string
	Email          string
	Status         string
	ProposalStatus string
	Body           []byte
}

// CollaboratorRecord is a directory row keyed by its index. Doc holds the
// full collaborator JSON.
type CollaboratorRecord struct {
	Index        int
	PrimaryEmail string
	Doc          []byte
}

type User struct {
	Email     string
	PassHash  []byte
	CreatedAt time.Time
}

type memoryStore struct {
	mu            sync.RWMutex
	requests      map[string]*RequestRecord
	collaborators map[int]*CollaboratorRecord
	admins        map[string][]string
	usersByEmail  map[string]*User
}

// NewMemoryStore returns a Store that keeps everything in process memory.
func NewMemoryStore() Store {
	return newMemoryStore()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		requests:      map[string]*RequestRecord{},
		collaborators: map[int]*CollaboratorRecord{},
		admins:        map[string][]string{},
		usersByEmail:  map[string]*User{},
	}
}

func (s *memoryStore) AddRequest(r *RequestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.FileName]; ok {
		return ErrDuplicate
	}
	cp := *r
	cp.Body = append([]byte(nil), r.Body...)
	s.requests[r.FileName] = &cp
	return nil
}

func (s *memoryStore) ListRequests() ([]*RequestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RequestRecord, 0, len(s.requests))
	for _, r := range s.requests {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out, nil
}

func (s *memoryStore) GetRequest(fileName string) (*RequestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.requests[fileName]
	if r == nil {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *memoryStore) ListCollaborators() ([]*CollaboratorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*CollaboratorRecord, 0, len(s.collaborators))
	for _, c := range s.collaborators {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *memoryStore) UpsertCollaborator(c *CollaboratorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.Doc = append([]byte(nil), c.Doc...)
	s.collaborators[c.Index] = &cp
	return nil
}

func (s *memoryStore) DeleteCollaborator(index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collaborators[index]; !ok {
		return false, nil
	}
	delete(s.collaborators, index)
	return true, nil
}

func (s *memoryStore) ListAdmins(scope string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.admins[scope]...), nil
}

func (s *memoryStore) AddAdmin(scope, email string) error {
	email = strings.TrimSpace(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.admins[scope] {
		if strings.EqualFold(a, email) {
			return nil
		}
	}
	s.admins[scope] = append(s.admins[scope], email)
	return nil
}

func (s *memoryStore) DeleteAdmin(scope, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.admins[scope]
	for i, a := range list {
		if strings.EqualFold(a, strings.TrimSpace(email)) {
			s.admins[scope] = append(list[:i:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) AddUser(u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := s.usersByEmail[key]; ok {
		return ErrDuplicate
	}
	cp := *u
	s.usersByEmail[key] = &cp
	return nil
}

func (s *memoryStore) FindUserByEmail(email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if u == nil {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}
