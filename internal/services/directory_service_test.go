package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"
)

type dirStubStore struct {
	collabs map[int]*Collaborator
	admins  map[AdminScope][]string
	saves   int
	failOn  int
}

func newDirStubStore() *dirStubStore {
	s := &dirStubStore{collabs: map[int]*Collaborator{}, admins: map[AdminScope][]string{}}
	for _, c := range []*Collaborator{
		{Index: 1, PrimaryEmail: "pi@lab.org", FirstName: "Ann", LastName: "Smith", Role: RolePI, IsActive: true,
			CohortEnigmaList: []string{"Cohort A"}, UniversityList: []string{"USC"}},
		{Index: 2, PrimaryEmail: "m1@lab.org", EmailList: []string{"m1@lab.org", "alt@home.org"}, FirstName: "Ben", LastName: "Lee",
			Role: RoleMember, IsActive: true, PILastName: []string{"Smith"}},
		{Index: 3, PrimaryEmail: "copi@lab.org", FirstName: "Cy", LastName: "Jones", Role: RoleCoPI, IsActive: true,
			CohortEnigmaList: []string{"Cohort A", " Cohort B "}},
		{Index: 4, PrimaryEmail: "m2@lab.org", FirstName: "Di", LastName: "Park", Role: RoleMember, IsActive: false,
			PILastName: []string{"Jones"}},
	} {
		s.collabs[c.Index] = c
	}
	s.admins[ScopeDirectory] = []string{"admin@lab.org"}
	return s
}

func (s *dirStubStore) ListCollaborators() ([]*Collaborator, error) {
	out := make([]*Collaborator, 0, len(s.collabs))
	for _, c := range s.collabs {
		out = append(out, c.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *dirStubStore) SaveCollaborator(c *Collaborator) error {
	if s.failOn != 0 && c.Index == s.failOn {
		return errors.New("disk full")
	}
	s.saves++
	s.collabs[c.Index] = c.clone()
	return nil
}

func (s *dirStubStore) DeleteCollaborator(index int) error {
	delete(s.collabs, index)
	return nil
}

func (s *dirStubStore) ListAdmins(scope AdminScope) ([]string, error) {
	return append([]string(nil), s.admins[scope]...), nil
}

func (s *dirStubStore) AddAdmin(scope AdminScope, email string) error {
	s.admins[scope] = append(s.admins[scope], email)
	return nil
}

func (s *dirStubStore) DeleteAdmin(scope AdminScope, email string) error {
	var keep []string
	for _, a := range s.admins[scope] {
		if !strings.EqualFold(a, email) {
			keep = append(keep, a)
		}
	}
	s.admins[scope] = keep
	return nil
}

type captureNotifier struct {
	sent []Message
	err  error
}

func (n *captureNotifier) Send(_ context.Context, msg Message) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

var (
	asAdmin  = Viewer{Email: "Admin@lab.org"}
	asPI     = Viewer{Email: "pi@lab.org"}
	asCoPI   = Viewer{Email: "copi@lab.org"}
	asMember = Viewer{Email: "m1@lab.org"}
)

func newDirectory(t *testing.T) (*DirectoryService, *dirStubStore, *captureNotifier) {
	t.Helper()
	store := newDirStubStore()
	n := &captureNotifier{}
	svc := NewDirectoryService(store, n, nil)
	svc.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return svc, store, n
}

func expectCode(t *testing.T, err error, code ErrorCode) *ServiceError {
	t.Helper()
	se, ok := AsServiceError(err)
	if !ok || se.Code != code {
		t.Fatalf("expected %s error, got %v", code, err)
	}
	return se
}

func memberNames(list []Member) []string {
	out := make([]string, 0, len(list))
	for _, m := range list {
		out = append(out, m.Email)
	}
	sort.Strings(out)
	return out
}

func TestCheckAuthorization(t *testing.T) {
	svc, _, _ := newDirectory(t)

	res, err := svc.CheckAuthorization(asAdmin)
	if err != nil || !res.IsAdmin || res.IsCollaborator || !res.CanAccessDataRequest {
		t.Fatalf("unexpected admin check %+v err=%v", res, err)
	}
	res, err = svc.CheckAuthorization(asMember)
	if err != nil || res.IsAdmin || !res.IsCollaborator || res.UserDetails.Index != 2 {
		t.Fatalf("unexpected member check %+v err=%v", res, err)
	}
	_, err = svc.CheckAuthorization(Viewer{Email: "m2@lab.org"})
	if se := expectCode(t, err, ErrorForbidden); !strings.Contains(se.Message, "inactive") {
		t.Fatalf("unexpected message %q", se.Message)
	}
	_, err = svc.CheckAuthorization(Viewer{Email: "stranger@else.org"})
	if se := expectCode(t, err, ErrorForbidden); !strings.Contains(se.Message, "not authorized") {
		t.Fatalf("unexpected message %q", se.Message)
	}
}

func TestListVisibility(t *testing.T) {
	svc, _, _ := newDirectory(t)

	all, err := svc.List(asAdmin)
	if err != nil || len(all) != 4 || all[0].Index != 4 || all[3].Index != 1 {
		t.Fatalf("admin list = %+v err=%v", all, err)
	}
	if all[3].Institution != "USC" || all[3].Email != "pi@lab.org" || all[0].IsActive != "false" {
		t.Fatalf("unexpected table projection %+v", all[3])
	}
	team, err := svc.List(asPI)
	if err != nil || len(team) != 2 || team[0].Index != 2 || team[1].Index != 1 {
		t.Fatalf("pi list = %+v err=%v", team, err)
	}
	own, err := svc.List(asMember)
	if err != nil || len(own) != 1 || own[0].Index != 2 {
		t.Fatalf("member list = %+v err=%v", own, err)
	}
	_, err = svc.List(Viewer{Email: "stranger@else.org"})
	expectCode(t, err, ErrorNotFound)
	_, err = svc.List(Viewer{})
	expectCode(t, err, ErrorUnauthorized)
}

func TestUserDetailsPopulatesTeam(t *testing.T) {
	svc, store, _ := newDirectory(t)
	pi, err := svc.UserDetails(asPI)
	if err != nil {
		t.Fatal(err)
	}
	if got := memberNames(pi.ActiveMembers); len(got) != 1 || got[0] != "m1@lab.org" {
		t.Fatalf("active members = %v", got)
	}
	if len(store.collabs[1].ActiveMembers) != 0 {
		t.Fatalf("reading details must not persist the computed team")
	}

	store.collabs[1].MembersInitialized = true
	store.collabs[1].FormerMembers = []Member{{Email: "m1@lab.org"}}
	pi, _ = svc.UserDetails(asPI)
	if len(pi.ActiveMembers) != 0 {
		t.Fatalf("curated former member re-added: %+v", pi.ActiveMembers)
	}
}

func TestGetByIndexAccess(t *testing.T) {
	svc, _, _ := newDirectory(t)
	if _, err := svc.GetByIndex(asPI, 2); err != nil {
		t.Fatalf("PI should see own member: %v", err)
	}
	if _, err := svc.GetByIndex(asMember, 2); err != nil {
		t.Fatalf("member should see self: %v", err)
	}
	_, err := svc.GetByIndex(asPI, 4)
	expectCode(t, err, ErrorForbidden)
	_, err = svc.GetByIndex(asAdmin, 99)
	expectCode(t, err, ErrorNotFound)
}

func TestAddByPI(t *testing.T) {
	svc, store, _ := newDirectory(t)
	c, err := svc.Add(asPI, CollaboratorInput{
		Emails:           StringList{" new@lab.org ", ""},
		FirstName:        "Eve",
		LastName:         "Ng",
		Role:             RolePI,
		CohortEnigmaList: []string{"Cohort Z"},
		ORCID:            "0000-0002-1825-0097",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if c.Index != 5 || c.Role != RoleMember || len(c.CohortEnigmaList) != 0 || len(c.PILastName) != 1 || c.PILastName[0] != "Smith" {
		t.Fatalf("unexpected collaborator %+v", c)
	}
	if got := memberNames(store.collabs[1].ActiveMembers); len(got) != 1 || got[0] != "new@lab.org" {
		t.Fatalf("PI team not updated: %v", got)
	}

	_, err = svc.Add(asPI, CollaboratorInput{Emails: StringList{"NEW@lab.org"}})
	expectCode(t, err, ErrorConflict)
	_, err = svc.Add(asPI, CollaboratorInput{Emails: StringList{"x@lab.org"}, ORCID: "123"})
	expectCode(t, err, ErrorInvalid)
	_, err = svc.Add(asPI, CollaboratorInput{})
	expectCode(t, err, ErrorInvalid)
	_, err = svc.Add(asMember, CollaboratorInput{Emails: StringList{"y@lab.org"}})
	expectCode(t, err, ErrorForbidden)
}

func TestAddMemberByAdminJoinsEveryPI(t *testing.T) {
	svc, store, _ := newDirectory(t)
	_, err := svc.Add(asAdmin, CollaboratorInput{
		Emails:     StringList{"both@lab.org"},
		Role:       RoleMember,
		PILastName: StringList{"smith", "Jones"},
		Institutions: Institutions{
			{University: "USC", City: "LA"},
			{University: "UCL", City: "London"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, idx := range []int{1, 3} {
		pi := store.collabs[idx]
		if got := memberNames(pi.ActiveMembers); len(got) != 1 || got[0] != "both@lab.org" || !pi.MembersInitialized {
			t.Fatalf("PI %d team = %v initialized=%v", idx, got, pi.MembersInitialized)
		}
	}
	added := store.collabs[5]
	if len(added.UniversityList) != 2 || added.CityList[1] != "London" {
		t.Fatalf("institutions not split: %+v", added)
	}
}

func TestAddCleansPILastNames(t *testing.T) {
	svc, store, _ := newDirectory(t)
	_, err := svc.Add(asAdmin, CollaboratorInput{
		Emails:     StringList{"solo@lab.org"},
		Role:       RoleMember,
		PILastName: StringList{" Smith ", "", "SMITH", "  "},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := store.collabs[5].PILastName; len(got) != 1 || got[0] != "Smith" {
		t.Fatalf("pi_last_name = %q", got)
	}
	if got := memberNames(store.collabs[1].ActiveMembers); len(got) != 1 || got[0] != "solo@lab.org" {
		t.Fatalf("PI team = %v", got)
	}
}

func TestUpdateReassignsPIs(t *testing.T) {
	svc, store, _ := newDirectory(t)
	next := StringList{"Jones"}
	if _, err := svc.Update(asAdmin, 2, CollaboratorUpdate{PILastName: &next}); err != nil {
		t.Fatal(err)
	}
	if got := memberNames(store.collabs[1].FormerMembers); len(got) != 1 || got[0] != "m1@lab.org" {
		t.Fatalf("old PI former = %v", got)
	}
	if got := memberNames(store.collabs[3].ActiveMembers); len(got) != 1 || got[0] != "m1@lab.org" {
		t.Fatalf("new PI active = %v", got)
	}
	if m := store.collabs[2]; !m.IsActive || len(m.PILastName) != 1 || m.PILastName[0] != "Jones" {
		t.Fatalf("member = %+v", m)
	}

	none := StringList{}
	if _, err := svc.Update(asAdmin, 2, CollaboratorUpdate{PILastName: &none}); err != nil {
		t.Fatal(err)
	}
	if store.collabs[2].IsActive {
		t.Fatalf("member without PIs must be inactive")
	}
}

func TestUpdateActiveToggleMovesBetweenLists(t *testing.T) {
	svc, store, _ := newDirectory(t)
	off := false
	if _, err := svc.Update(asAdmin, 2, CollaboratorUpdate{IsActive: &off}); err != nil {
		t.Fatal(err)
	}
	pi := store.collabs[1]
	if len(pi.ActiveMembers) != 0 || len(pi.FormerMembers) != 1 || !pi.MembersInitialized {
		t.Fatalf("PI lists = %+v / %+v", pi.ActiveMembers, pi.FormerMembers)
	}
	if store.collabs[2].IsActive {
		t.Fatalf("member should be inactive")
	}
}

func TestUpdatePITeamEditSyncsMembers(t *testing.T) {
	svc, store, _ := newDirectory(t)
	former := []Member{{Email: "m1@lab.org"}}
	active := []Member{{Email: "m2@lab.org"}}
	if _, err := svc.Update(asPI, 1, CollaboratorUpdate{ActiveMembers: &active, FormerMembers: &former}); err != nil {
		t.Fatal(err)
	}
	if m := store.collabs[2]; len(m.PILastName) != 0 || m.IsActive {
		t.Fatalf("former member = %+v", m)
	}
	if m := store.collabs[4]; !m.IsActive || len(m.PILastName) != 2 {
		t.Fatalf("new active member = %+v", m)
	}
	if !store.collabs[1].MembersInitialized {
		t.Fatalf("curated team must be marked initialized")
	}
}

func TestUpdatePermissions(t *testing.T) {
	svc, _, _ := newDirectory(t)
	role := RolePI
	_, err := svc.Update(asMember, 2, CollaboratorUpdate{Role: &role})
	expectCode(t, err, ErrorForbidden)
	_, err = svc.Update(asMember, 1, CollaboratorUpdate{})
	expectCode(t, err, ErrorForbidden)
	_, err = svc.Update(asCoPI, 2, CollaboratorUpdate{})
	expectCode(t, err, ErrorForbidden)

	name := "Benjamin"
	c, err := svc.Update(asMember, 2, CollaboratorUpdate{FirstName: &name, Emails: StringList{"m1@lab.org", "b@x.org"}})
	if err != nil || c.FirstName != "Benjamin" || len(c.EmailList) != 2 {
		t.Fatalf("self update = %+v err=%v", c, err)
	}
	_, err = svc.Update(asMember, 2, CollaboratorUpdate{Emails: StringList{"pi@lab.org"}})
	expectCode(t, err, ErrorConflict)
	_, err = svc.Update(asAdmin, 42, CollaboratorUpdate{})
	expectCode(t, err, ErrorNotFound)
}

func TestUpdateFundingAlias(t *testing.T) {
	svc, store, _ := newDirectory(t)
	funding := []string{"NIH R01"}
	if _, err := svc.Update(asAdmin, 2, CollaboratorUpdate{Funding: &funding}); err != nil {
		t.Fatal(err)
	}
	if got := store.collabs[2].FundingAck; len(got) != 1 || got[0] != "NIH R01" {
		t.Fatalf("funding_ack = %v", got)
	}
}

func TestDelete(t *testing.T) {
	svc, store, _ := newDirectory(t)
	store.collabs[1].ActiveMembers = []Member{{Email: "m1@lab.org"}}
	store.collabs[3].FormerMembers = []Member{{Email: "M1@lab.org"}}

	expectCode(t, svc.Delete(asPI, 2, ""), ErrorForbidden)
	expectCode(t, svc.Delete(asAdmin, 0, ""), ErrorInvalid)
	expectCode(t, svc.Delete(asAdmin, 0, "ghost@lab.org"), ErrorNotFound)

	if err := svc.Delete(asAdmin, 0, "m1@lab.org"); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.collabs[2]; ok {
		t.Fatalf("collaborator not removed")
	}
	if len(store.collabs[1].ActiveMembers) != 0 || len(store.collabs[3].FormerMembers) != 0 {
		t.Fatalf("member lists not cleaned")
	}
}

func TestPIsByCohort(t *testing.T) {
	svc, _, _ := newDirectory(t)
	got, err := svc.PIsByCohort()
	if err != nil {
		t.Fatal(err)
	}
	if len(got["Cohort A"]) != 2 || got["Cohort A"][0].Name != "Ann Smith" {
		t.Fatalf("Cohort A = %+v", got["Cohort A"])
	}
	if b := got["Cohort B"]; len(b) != 1 || b[0].Role != RoleCoPI {
		t.Fatalf("Cohort B = %+v", b)
	}
}

func TestCurrentRoleAndLookup(t *testing.T) {
	svc, _, _ := newDirectory(t)
	if r, _ := svc.CurrentRole(asAdmin); r == nil || r.Role != RoleAdmin || !r.IsAdmin {
		t.Fatalf("admin role = %+v", r)
	}
	if r, _ := svc.CurrentRole(asCoPI); r == nil || r.Role != RoleCoPI || len(r.Cohorts) != 2 {
		t.Fatalf("co-pi role = %+v", r)
	}
	_, err := svc.CurrentRole(Viewer{Email: "x@y.org"})
	expectCode(t, err, ErrorNotFound)

	hit, err := svc.CheckByEmail("ALT@home.org")
	if err != nil || !hit.Exists || hit.Index != 2 || hit.Email != "m1@lab.org" {
		t.Fatalf("lookup = %+v err=%v", hit, err)
	}
	miss, _ := svc.CheckByEmail("nobody@home.org")
	if miss.Exists {
		t.Fatalf("unexpected hit")
	}
	_, err = svc.CheckByEmail(" ")
	expectCode(t, err, ErrorInvalid)
}

func TestAdmins(t *testing.T) {
	svc, _, _ := newDirectory(t)
	expectCode(t, svc.AddAdmin(asPI, ScopeDirectory, "x@lab.org"), ErrorForbidden)
	if err := svc.AddAdmin(asAdmin, ScopeDirectory, "pi@lab.org"); err != nil {
		t.Fatal(err)
	}
	expectCode(t, svc.AddAdmin(asAdmin, ScopeDirectory, "PI@lab.org"), ErrorConflict)
	list, err := svc.ListAdmins(asAdmin, ScopeDirectory)
	if err != nil || len(list) != 2 {
		t.Fatalf("admins = %v err=%v", list, err)
	}
	expectCode(t, svc.DeleteAdmin(asAdmin, ScopeDirectory, "ghost@lab.org"), ErrorNotFound)
	if err := svc.DeleteAdmin(asAdmin, ScopeDirectory, "pi@lab.org"); err != nil {
		t.Fatal(err)
	}
	_, err = svc.ListAdmins(asAdmin, ScopeDataRequest)
	expectCode(t, err, ErrorForbidden)
	if ok, _ := svc.IsKnown("m2@lab.org"); !ok {
		t.Fatalf("inactive collaborators are still known")
	}
}

func TestSendInvite(t *testing.T) {
	svc, _, n := newDirectory(t)
	expectCode(t, svc.SendInvite(context.Background(), asCoPI, "new@x.org", ""), ErrorForbidden)
	expectCode(t, svc.SendInvite(context.Background(), asPI, "not-an-email", ""), ErrorInvalid)
	if err := svc.SendInvite(context.Background(), asPI, "new@x.org", ""); err != nil {
		t.Fatal(err)
	}
	if len(n.sent) != 1 || n.sent[0].To != "new@x.org" || !strings.Contains(n.sent[0].Body, "ENIGMA Team") {
		t.Fatalf("sent = %+v", n.sent)
	}
}

func TestSaveFailureSurfaces(t *testing.T) {
	svc, store, _ := newDirectory(t)
	store.failOn = 1
	_, err := svc.Add(asPI, CollaboratorInput{Emails: StringList{"z@lab.org"}})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected store error, got %v", err)
	}
}
