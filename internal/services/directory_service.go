package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/npnl/enigma-request/internal/utils"
)

const (
	contactAddress   = "npnlusc@gmail.com"
	msgInactive      = "Your account is inactive. You cannot access the system. Please contact NPNL at " + contactAddress + " to reactivate your account."
	msgNotAuthorized = "You are not authorized to access this system. Please contact NPNL at " + contactAddress + "."
)

type DirectoryStore interface {
	ListCollaborators() ([]*Collaborator, error)
	SaveCollaborator(c *Collaborator) error
	DeleteCollaborator(index int) error
	ListAdmins(scope AdminScope) ([]string, error)
	AddAdmin(scope AdminScope, email string) error
	DeleteAdmin(scope AdminScope, email string) error
}

type DirectoryService struct {
	store    DirectoryStore
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewDirectoryService(store DirectoryStore, notifier Notifier, log *zap.Logger) *DirectoryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DirectoryService{
		store:    store,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// roster is a loaded copy of the directory that tracks which entries were
// changed so only those are written back.
type roster struct {
	list  []*Collaborator
	dirty map[int]bool
}

func (s *DirectoryService) load() (*roster, error) {
	list, err := s.store.ListCollaborators()
	if err != nil {
		return nil, err
	}
	r := &roster{list: make([]*Collaborator, 0, len(list)), dirty: map[int]bool{}}
	for _, c := range list {
		if c != nil {
			r.list = append(r.list, c.clone())
		}
	}
	return r, nil
}

func (r *roster) touch(c *Collaborator) { r.dirty[c.Index] = true }

func (r *roster) byPrimary(email string) *Collaborator {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	for _, c := range r.list {
		if normalizeEmail(c.PrimaryEmail) == email {
			return c
		}
	}
	return nil
}

func (r *roster) byIndex(index int) *Collaborator {
	for _, c := range r.list {
		if c.Index == index {
			return c
		}
	}
	return nil
}

// piNamed returns the first PI or Co-PI with lastName.
func (r *roster) piNamed(lastName string) *Collaborator {
	lastName = strings.ToLower(strings.TrimSpace(lastName))
	if lastName == "" {
		return nil
	}
	for _, c := range r.list {
		if c.IsPI() && strings.ToLower(strings.TrimSpace(c.LastName)) == lastName {
			return c
		}
	}
	return nil
}

// cohortMembers lists everyone naming lastName as a PI, excluding the PI.
func (r *roster) cohortMembers(lastName, excludeEmail string) []Member {
	var out []Member
	for _, c := range r.list {
		if normalizeEmail(c.PrimaryEmail) == normalizeEmail(excludeEmail) {
			continue
		}
		if c.HasPI(lastName) {
			out = append(out, c.asMember())
		}
	}
	return out
}

func (s *DirectoryService) save(r *roster) error {
	for _, c := range r.list {
		if !r.dirty[c.Index] {
			continue
		}
		if err := s.store.SaveCollaborator(c); err != nil {
			return fmt.Errorf("save collaborator %d: %w", c.Index, err)
		}
	}
	return nil
}

func (s *DirectoryService) adminIn(scope AdminScope, email string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return false, nil
	}
	admins, err := s.store.ListAdmins(scope)
	if err != nil {
		return false, err
	}
	for _, a := range admins {
		if normalizeEmail(a) == email {
			return true, nil
		}
	}
	return false, nil
}

// IsAdmin reports whether email is an admin in scope.
func (s *DirectoryService) IsAdmin(scope AdminScope, email string) (bool, error) {
	return s.adminIn(scope, email)
}

func (s *DirectoryService) isConsoleAdmin(v Viewer) (bool, error) {
	return s.adminIn(ScopeDirectory, v.Email)
}

func requireViewer(v Viewer) error {
	if strings.TrimSpace(v.Email) == "" {
		return NewUnauthorizedError("authentication required")
	}
	return nil
}

type AuthCheck struct {
	Authorized                    bool          `json:"authorized"`
	IsAdmin                       bool          `json:"is_admin"`
	IsCollaborator                bool          `json:"is_collaborator"`
	CanAccessCollaboratorsConsole bool          `json:"can_access_collaborators_console"`
	CanAccessDataRequest          bool          `json:"can_access_data_request"`
	IsActive                      bool          `json:"is_active"`
	UserDetails                   *Collaborator `json:"user_details"`
}

// CheckAuthorization decides whether the caller may use the system at all.
// Admins of either scope are let in; collaborators must be active.
func (s *DirectoryService) CheckAuthorization(v Viewer) (*AuthCheck, error) {
	if strings.TrimSpace(v.Email) == "" {
		return nil, NewInvalidError("Email not found")
	}
	dirAdmin, err := s.adminIn(ScopeDirectory, v.Email)
	if err != nil {
		return nil, err
	}
	reqAdmin, err := s.adminIn(ScopeDataRequest, v.Email)
	if err != nil {
		return nil, err
	}
	r, err := s.load()
	if err != nil {
		return nil, err
	}
	me := r.byPrimary(v.Email)
	if dirAdmin || reqAdmin {
		active := true
		if me != nil {
			active = me.IsActive
		}
		return &AuthCheck{
			Authorized:                    true,
			IsAdmin:                       true,
			IsCollaborator:                me != nil,
			CanAccessCollaboratorsConsole: dirAdmin || me != nil,
			CanAccessDataRequest:          true,
			IsActive:                      active,
			UserDetails:                   me,
		}, nil
	}
	if me == nil {
		return nil, NewForbiddenError(msgNotAuthorized)
	}
	if !me.IsActive {
		return nil, NewForbiddenError(msgInactive)
	}
	return &AuthCheck{
		Authorized:                    true,
		IsCollaborator:                true,
		CanAccessCollaboratorsConsole: true,
		CanAccessDataRequest:          true,
		IsActive:                      true,
		UserDetails:                   me,
	}, nil
}

// withMembers fills a PI's active member list from the collaborators that
// name them. Once the list has been curated only newcomers are appended.
func (r *roster) withMembers(c *Collaborator) *Collaborator {
	if !c.IsPI() {
		return c
	}
	out := c.clone()
	potential := r.cohortMembers(c.LastName, c.PrimaryEmail)
	if !c.MembersInitialized {
		out.ActiveMembers = potential
		return out
	}
	known := map[string]bool{}
	for _, m := range append(append([]Member(nil), c.ActiveMembers...), c.FormerMembers...) {
		known[normalizeEmail(m.Email)] = true
	}
	for _, m := range potential {
		if !known[normalizeEmail(m.Email)] {
			out.ActiveMembers = append(out.ActiveMembers, m)
		}
	}
	return out
}

// UserDetails returns the caller's own directory entry.
func (s *DirectoryService) UserDetails(v Viewer) (*Collaborator, error) {
	if err := requireViewer(v); err != nil {
		return nil, err
	}
	r, err := s.load()
	if err != nil {
		return nil, err
	}
	me := r.byPrimary(v.Email)
	if me == nil {
		return nil, NewNotFoundError("User not found")
	}
	return r.withMembers(me), nil
}

// GetByIndex is allowed for admins, the collaborator themself, and any PI the
// collaborator names.
func (s *DirectoryService) GetByIndex(v Viewer, index int) (*Collaborator, error) {
	if err := requireViewer(v); err != nil {
		return nil, err
	}
	r, err := s.load()
	if err != nil {
		return nil, err
	}
	target := r.byIndex(index)
	if target == nil {
		return nil, NewNotFoundError("Not found")
	}
	full := r.withMembers(target)
	ok, err := s.canView(r, v, target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewForbiddenError("Forbidden")
	}
	return full, nil
}

func (s *DirectoryService) canView(r *roster, v Viewer, target *Collaborator) (bool, error) {
	admin, err := s.isConsoleAdmin(v)
	if err != nil || admin {
		return admin, err
	}
	if normalizeEmail(target.PrimaryEmail) == normalizeEmail(v.Email) {
		return true, nil
	}
	me := r.byPrimary(v.Email)
	return me != nil && me.IsPI() && target.HasPI(me.LastName), nil
}

// TableRow is a collaborator shaped for the console table.
type TableRow struct {
	Collaborator
	Email       string `json:"email"`
	IsActive    string `json:"is_active"`
	Institution string `json:"University/Institute"`
}

func tableRow(c *Collaborator) TableRow {
	row := TableRow{Collaborator: *c, Email: c.PrimaryEmail, IsActive: "false"}
	if row.Role == "" {
		row.Role = RoleMember
	}
	if c.IsActive {
		row.IsActive = "true"
	}
	if len(c.UniversityList) > 0 {
		row.Institution = c.UniversityList[0]
	}
	return row
}

// List returns the collaborators visible to the caller, highest index first.
func (s *DirectoryService) List(v Viewer) ([]TableRow, error) {
	if err := requireViewer(v); err != nil {
		return nil, err
	}
	r, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(r.list, func(i, j int) bool { return r.list[i].Index > r.list[j].Index })
	admin, err := s.isConsoleAdmin(v)
	if err != nil {
		return nil, err
	}
	var visible []*Collaborator
	switch me := r.byPrimary(v.Email); {
	case admin:
		visible = r.list
	case me == nil:
		return nil, NewNotFoundError("User not found")
	case me.IsPI():
		mine := map[string]bool{}
		for _, m := range append(append([]Member(nil), me.ActiveMembers...), me.FormerMembers...) {
			if e := normalizeEmail(m.Email); e != "" {
				mine[e] = true
			}
		}
		for _, c := range r.list {
			if c == me || mine[normalizeEmail(c.PrimaryEmail)] || c.HasPI(me.LastName) {
				visible = append(visible, c)
			}
		}
	default:
		visible = []*Collaborator{me}
	}
	rows := make([]TableRow, 0, len(visible))
	for _, c := range visible {
		rows = append(rows, tableRow(c))
	}
	return rows, nil
}

// CollaboratorInput is the body of an add request.
type CollaboratorInput struct {
	Emails           StringList   `json:"emails"`
	FirstName        string       `json:"first_name"`
	LastName         string       `json:"last_name"`
	MI               string       `json:"MI"`
	Degrees          []string     `json:"degrees"`
	ORCID            string       `json:"orcid"`
	ProfilePicture   string       `json:"profile_picture"`
	Institutions     Institutions `json:"institutions"`
	CohortEnigmaList []string     `json:"cohort_enigma_list"`
	CohortOrigList   []string     `json:"cohort_orig_list"`
	Role             string       `json:"role"`
	PILastName       StringList   `json:"pi_last_name"`
	ActiveMembers    []Member     `json:"active_members"`
	FormerMembers    []Member     `json:"former_members"`
	Funding          []string     `json:"funding"`
	Disclosures      []string     `json:"disclosures"`
	BlanketOptIn     string       `json:"blanket_opt_in"`
}

func validateContact(emails []string, orcid string) error {
	for _, e := range emails {
		if !utils.IsValidEmail(e) {
			return NewInvalidError("invalid email address: " + e)
		}
	}
	if !utils.IsValidORCID(orcid) {
		return NewInvalidError("ORCID must be 16 digits (hyphens allowed) or NA")
	}
	return nil
}

func applyInstitutions(c *Collaborator, in Institutions) {
	c.DepartmentList = make([]string, 0, len(in))
	c.UniversityList = make([]string, 0, len(in))
	c.AddressList = make([]string, 0, len(in))
	c.CityList = make([]string, 0, len(in))
	c.StateList = make([]string, 0, len(in))
	c.CountryList = make([]string, 0, len(in))
	for _, inst := range in {
		c.DepartmentList = append(c.DepartmentList, inst.Department)
		c.UniversityList = append(c.UniversityList, inst.University)
		c.AddressList = append(c.AddressList, inst.Address)
		c.CityList = append(c.CityList, inst.City)
		c.StateList = append(c.StateList, inst.State)
		c.CountryList = append(c.CountryList, inst.Country)
	}
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func appendMember(list []Member, m Member) []Member {
	for _, existing := range list {
		if normalizeEmail(existing.Email) == normalizeEmail(m.Email) {
			return list
		}
	}
	return append(list, m)
}

func withoutMember(list []Member, email string) []Member {
	email = normalizeEmail(email)
	out := make([]Member, 0, len(list))
	for _, m := range list {
		if normalizeEmail(m.Email) != email {
			out = append(out, m)
		}
	}
	return out
}

// Add creates a directory entry. PIs may only add members of their own team.
func (s *DirectoryService) Add(v Viewer, in CollaboratorInput) (*Collaborator, error) {
	if err := requireViewer(v); err != nil {
		return nil, err
	}
	admin, err := s.isConsoleAdmin(v)
	if err != nil {
		return nil, err
	}
	r, err := s.load()
	if err != nil {
		return nil, err
	}
	var pi *Collaborator
	if !admin {
		pi = r.byPrimary(v.Email)
		if pi == nil || !pi.IsPI() {
			return nil, NewForbiddenError("Only Admins and PIs can add collaborators")
		}
	}
	emails := cleanList(in.Emails)
	if len(emails) == 0 {
		return nil, NewInvalidError("At least one email is required")
	}
	if err := validateContact(emails, in.ORCID); err != nil {
		return nil, err
	}
	if r.byPrimary(emails[0]) != nil {
		return nil, NewConflictError("Collaborator already exists")
	}
	next := 0
	for _, c := range r.list {
		if c.Index > next {
			next = c.Index
		}
	}
	c := &Collaborator{
		Index:              next + 1,
		Timestamp:          s.now().Format(time.RFC3339),
		PrimaryEmail:       emails[0],
		EmailList:          emails,
		FirstName:          strings.TrimSpace(in.FirstName),
		LastName:           strings.TrimSpace(in.LastName),
		MI:                 strings.TrimSpace(in.MI),
		Degrees:            nonNil(in.Degrees),
		ORCID:              strings.TrimSpace(in.ORCID),
		ProfilePicture:     in.ProfilePicture,
		IsActive:           true,
		ActiveMembers:      append([]Member{}, in.ActiveMembers...),
		FormerMembers:      append([]Member{}, in.FormerMembers...),
		CohortContributors: []string{},
		CohortFunding:      []string{},
		FundingAck:         nonNil(in.Funding),
		Disclosures:        nonNil(in.Disclosures),
		BlanketOptIn:       in.BlanketOptIn,
	}
	applyInstitutions(c, in.Institutions)
	if pi != nil {
		c.Role = RoleMember
		c.CohortEnigmaList = []string{}
		c.CohortOrigList = []string{}
		c.PILastName = []string{}
		if last := strings.TrimSpace(pi.LastName); last != "" {
			c.PILastName = []string{last}
		}
	} else {
		c.Role = strings.TrimSpace(in.Role)
		c.CohortEnigmaList = nonNil(in.CohortEnigmaList)
		c.CohortOrigList = nonNil(in.CohortOrigList)
		c.PILastName = cleanNames(in.PILastName)
	}
	r.list = append(r.list, c)
	r.touch(c)

	switch {
	case pi != nil:
		pi.ActiveMembers = appendMember(pi.ActiveMembers, c.asMember())
		r.touch(pi)
	case c.Role == RoleMember:
		for _, name := range c.PILastName {
			if lead := r.piNamed(name); lead != nil {
				lead.ActiveMembers = appendMember(lead.ActiveMembers, c.asMember())
				lead.MembersInitialized = true
				r.touch(lead)
			}
		}
	}
	if err := s.save(r); err != nil {
		return nil, err
	}
	s.log.Info("collaborator added", zap.Int("index", c.Index), zap.String("by", normalizeEmail(v.Email)))
	return c, nil
}

// CollaboratorUpdate carries the fields of an update request; nil fields
// are left unchanged.
type CollaboratorUpdate struct {
	IsActive           *bool        `json:"is_active"`
	Emails             StringList   `json:"emails"`
	EmailList          StringList   `json:"email_list"`
	FirstName          *string      `json:"first_name"`
	LastName           *string      `json:"last_name"`
	MI                 *string      `json:"MI"`
	ORCID              *string      `json:"orcid"`
	Role               *string      `json:"role"`
	ProfilePicture     *string      `json:"profile_picture"`
	BlanketOptIn       *string      `json:"blanket_opt_in"`
	PILastName         *StringList  `json:"pi_last_name"`
	Degrees            *[]string    `json:"degrees"`
	CohortEnigmaList   *[]string    `json:"cohort_enigma_list"`
	CohortOrigList     *[]string    `json:"cohort_orig_list"`
	Disclosures        *[]string    `json:"disclosures"`
	CohortContributors *[]string    `json:"cohort_contributors"`
	CohortFunding      *[]string    `json:"cohort_funding"`
	Funding            *[]string    `json:"funding"`
	FundingAck         *[]string    `json:"funding_ack"`
	ActiveMembers      *[]Member    `json:"active_members"`
	FormerMembers      *[]Member    `json:"former_members"`
	Institutions       Institutions `json:"institutions"`
}

func memberEmails(list []Member) map[string]bool {
	out := make(map[string]bool, len(list))
	for _, m := range list {
		if e := normalizeEmail(m.Email); e != "" {
			out[e] = true
		}
	}
	return out
}

func addPI(list []string, lastName string) []string {
	for _, pi := range list {
		if strings.EqualFold(strings.TrimSpace(pi), lastName) {
			return list
		}
	}
	return append(list, lastName)
}

func removePI(list []string, lastName string) []string {
	out := make([]string, 0, len(list))
	for _, pi := range list {
		if !strings.EqualFold(strings.TrimSpace(pi), lastName) {
			out = append(out, pi)
		}
	}
	return out
}

func lowerSet(list []string) map[string]bool {
	out := map[string]bool{}
	for _, s := range list {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out[s] = true
		}
	}
	return out
}

// Update edits a directory entry and keeps PI member lists consistent with
// members' PI names. Allowed for admins, the collaborator themself, and
// their PIs; role changes are reserved to admins.
func (s *DirectoryService) Update(v Viewer, index int, upd CollaboratorUpdate) (*Collaborator, error) {
	if err := requireViewer(v); err != nil {
		return nil, err
	}
	admin, err := s.isConsoleAdmin(v)
	if err != nil {
		return nil, err
	}
	r, err := s.load()
	if err != nil {
		return nil, err
	}
	target := r.byIndex(index)
	if target == nil {
		return nil, NewNotFoundError("User not found")
	}
	self := normalizeEmail(target.PrimaryEmail) == normalizeEmail(v.Email)
	me := r.byPrimary(v.Email)
	lead := me != nil && me.IsPI() && target.HasPI(me.LastName)
	if !admin && !self && !lead {
		return nil, NewForbiddenError("Forbidden")
	}
	if upd.Role != nil && strings.TrimSpace(*upd.Role) != target.Role && !admin {
		return nil, NewForbiddenError("Only admins can change roles")
	}
	if upd.IsActive != nil && *upd.IsActive != target.IsActive && !admin && !lead {
		return nil, NewForbiddenError("Only admins and PIs can change account status")
	}
	emails := cleanList(upd.Emails)
	if len(emails) == 0 {
		emails = cleanList(upd.EmailList)
	}
	orcid := ""
	if upd.ORCID != nil {
		orcid = strings.TrimSpace(*upd.ORCID)
	}
	if err := validateContact(emails, orcid); err != nil {
		return nil, err
	}
	if len(emails) > 0 {
		if other := r.byPrimary(emails[0]); other != nil && other != target {
			return nil, NewConflictError("Collaborator already exists")
		}
	}

	prevActive := append([]Member(nil), target.ActiveMembers...)
	prevFormer := append([]Member(nil), target.FormerMembers...)

	if upd.IsActive != nil && !target.IsPI() {
		target.IsActive = *upd.IsActive
		for _, name := range target.PILastName {
			p := r.piNamed(name)
			if p == nil {
				continue
			}
			p.ActiveMembers = withoutMember(p.ActiveMembers, target.PrimaryEmail)
			p.FormerMembers = withoutMember(p.FormerMembers, target.PrimaryEmail)
			if target.IsActive {
				p.ActiveMembers = append(p.ActiveMembers, target.asMember())
			} else {
				p.FormerMembers = append(p.FormerMembers, target.asMember())
			}
			p.MembersInitialized = true
			r.touch(p)
		}
	}

	target.Timestamp = s.now().Format(time.RFC3339)
	if upd.IsActive != nil {
		target.IsActive = *upd.IsActive
	}
	if len(emails) > 0 {
		target.PrimaryEmail = emails[0]
		target.EmailList = emails
	}

	if upd.PILastName != nil && target.Role == RoleMember {
		s.reassignPIs(r, target, cleanNames(*upd.PILastName))
	}

	if upd.FirstName != nil {
		target.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		target.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.MI != nil {
		target.MI = strings.TrimSpace(*upd.MI)
	}
	if upd.ORCID != nil {
		target.ORCID = orcid
	}
	if upd.Role != nil {
		target.Role = strings.TrimSpace(*upd.Role)
	}
	if upd.ProfilePicture != nil {
		target.ProfilePicture = *upd.ProfilePicture
	}
	if upd.BlanketOptIn != nil {
		target.BlanketOptIn = *upd.BlanketOptIn
	}
	if upd.PILastName != nil {
		target.PILastName = cleanNames(*upd.PILastName)
	}
	for dst, src := range map[*[]string]*[]string{
		&target.Degrees:            upd.Degrees,
		&target.CohortEnigmaList:   upd.CohortEnigmaList,
		&target.CohortOrigList:     upd.CohortOrigList,
		&target.Disclosures:        upd.Disclosures,
		&target.CohortContributors: upd.CohortContributors,
		&target.CohortFunding:      upd.CohortFunding,
	} {
		if src != nil {
			*dst = nonNil(*src)
		}
	}
	switch {
	case upd.Funding != nil:
		target.FundingAck = nonNil(*upd.Funding)
	case upd.FundingAck != nil:
		target.FundingAck = nonNil(*upd.FundingAck)
	}
	if upd.ActiveMembers != nil {
		target.ActiveMembers = append([]Member{}, (*upd.ActiveMembers)...)
	}
	if upd.FormerMembers != nil {
		target.FormerMembers = append([]Member{}, (*upd.FormerMembers)...)
	}
	if upd.ActiveMembers != nil || upd.FormerMembers != nil {
		target.MembersInitialized = true
	}
	if len(upd.Institutions) > 0 {
		applyInstitutions(target, upd.Institutions)
	}
	r.touch(target)

	if (upd.ActiveMembers != nil || upd.FormerMembers != nil) && target.IsPI() {
		s.syncTeam(r, target, prevActive, prevFormer)
	}
	if err := s.save(r); err != nil {
		return nil, err
	}
	s.log.Info("collaborator updated", zap.Int("index", target.Index), zap.String("by", normalizeEmail(v.Email)))
	return target, nil
}

// reassignPIs moves a member between PI teams after its PI list changed. A
// member left without PIs becomes inactive.
func (s *DirectoryService) reassignPIs(r *roster, target *Collaborator, next []string) {
	before, after := lowerSet(target.PILastName), lowerSet(next)
	m := target.asMember()
	m.Role = RoleMember
	for name := range before {
		if after[name] {
			continue
		}
		if p := r.piNamed(name); p != nil {
			p.ActiveMembers = withoutMember(p.ActiveMembers, target.PrimaryEmail)
			p.FormerMembers = append(withoutMember(p.FormerMembers, target.PrimaryEmail), m)
			r.touch(p)
		}
	}
	for name := range after {
		if before[name] {
			continue
		}
		if p := r.piNamed(name); p != nil {
			p.FormerMembers = withoutMember(p.FormerMembers, target.PrimaryEmail)
			p.ActiveMembers = appendMember(p.ActiveMembers, m)
			p.MembersInitialized = true
			r.touch(p)
		}
	}
	target.IsActive = len(after) > 0
}

// syncTeam applies a PI's edits of its member lists to the members' own PI
// names and status.
func (s *DirectoryService) syncTeam(r *roster, pi *Collaborator, prevActive, prevFormer []Member) {
	last := strings.TrimSpace(pi.LastName)
	if last == "" {
		return
	}
	oldActive, oldFormer := memberEmails(prevActive), memberEmails(prevFormer)
	newActive, newFormer := memberEmails(pi.ActiveMembers), memberEmails(pi.FormerMembers)
	for email := range newActive {
		if oldActive[email] && !oldFormer[email] {
			continue
		}
		if c := r.byPrimary(email); c != nil && c != pi {
			c.PILastName = addPI(c.PILastName, last)
			c.IsActive = true
			r.touch(c)
		}
	}
	for email := range newFormer {
		if oldFormer[email] {
			continue
		}
		if c := r.byPrimary(email); c != nil && c != pi {
			c.PILastName = removePI(c.PILastName, last)
			if len(c.PILastName) == 0 {
				c.IsActive = false
			}
			r.touch(c)
		}
	}
}

// Delete removes a collaborator by index or, when index is zero, by primary
// email, and strips them from every PI's member lists.
func (s *DirectoryService) Delete(v Viewer, index int, email string) error {
	if err := requireViewer(v); err != nil {
		return err
	}
	admin, err := s.isConsoleAdmin(v)
	if err != nil {
		return err
	}
	if !admin {
		return NewForbiddenError("Forbidden")
	}
	if index <= 0 && strings.TrimSpace(email) == "" {
		return NewInvalidError("Missing index or email")
	}
	r, err := s.load()
	if err != nil {
		return err
	}
	var target *Collaborator
	if index > 0 {
		target = r.byIndex(index)
	} else {
		target = r.byPrimary(email)
	}
	if target == nil {
		return NewNotFoundError("Collaborator not found")
	}
	for _, c := range r.list {
		if c == target || !c.IsPI() {
			continue
		}
		active := withoutMember(c.ActiveMembers, target.PrimaryEmail)
		former := withoutMember(c.FormerMembers, target.PrimaryEmail)
		if len(active) != len(c.ActiveMembers) || len(former) != len(c.FormerMembers) {
			c.ActiveMembers, c.FormerMembers = active, former
			r.touch(c)
		}
	}
	delete(r.dirty, target.Index)
	if err := s.save(r); err != nil {
		return err
	}
	if err := s.store.DeleteCollaborator(target.Index); err != nil {
		return err
	}
	s.log.Info("collaborator deleted", zap.Int("index", target.Index), zap.String("by", normalizeEmail(v.Email)))
	return nil
}

type PIRef struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// PIsByCohort maps each ENIGMA cohort to its distinct PIs and Co-PIs.
func (s *DirectoryService) PIsByCohort() (map[string][]PIRef, error) {
	r, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(r.list, func(i, j int) bool { return r.list[i].Index < r.list[j].Index })
	out := map[string][]PIRef{}
	for _, c := range r.list {
		if !c.IsPI() {
			continue
		}
		name := strings.TrimSpace(c.FirstName + " " + c.LastName)
		if name == "" {
			continue
		}
		for _, cohort := range c.CohortEnigmaList {
			cohort = strings.TrimSpace(cohort)
			if cohort == "" {
				continue
			}
			seen := false
			for _, p := range out[cohort] {
				if p.Name == name {
					seen = true
					break
				}
			}
			if !seen {
				out[cohort] = append(out[cohort], PIRef{Name: name, Role: c.Role})
			}
		}
	}
	return out, nil
}

type RoleInfo struct {
	Role    string   `json:"role"`
	Cohorts []string `json:"cohorts"`
	IsAdmin bool     `json:"is_admin"`
}

func (s *DirectoryService) CurrentRole(v Viewer) (*RoleInfo, error) {
	if err := requireViewer(v); err != nil {
		return nil, err
	}
	admin, err := s.isConsoleAdmin(v)
	if err != nil {
		return nil, err
	}
	if admin {
		return &RoleInfo{Role: RoleAdmin, Cohorts: []string{}, IsAdmin: true}, nil
	}
	r, err := s.load()
	if err != nil {
		return nil, err
	}
	me := r.byPrimary(v.Email)
	if me == nil {
		return nil, NewNotFoundError("User not found")
	}
	role := me.Role
	if role == "" {
		role = RoleMember
	}
	return &RoleInfo{Role: role, Cohorts: nonNil(me.CohortEnigmaList), IsAdmin: false}, nil
}

type EmailLookup struct {
	Exists    bool   `json:"exists"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	Index     int    `json:"index,omitempty"`
}

// CheckByEmail looks a collaborator up by any of their addresses.
func (s *DirectoryService) CheckByEmail(email string) (*EmailLookup, error) {
	if strings.TrimSpace(email) == "" {
		return nil, NewInvalidError("Email parameter is required")
	}
	r, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, c := range r.list {
		if !c.HasEmail(email) {
			continue
		}
		role := c.Role
		if role == "" {
			role = RoleMember
		}
		return &EmailLookup{
			Exists:    true,
			FirstName: c.FirstName,
			LastName:  c.LastName,
			Email:     c.PrimaryEmail,
			Role:      role,
			Index:     c.Index,
		}, nil
	}
	return &EmailLookup{Exists: false}, nil
}

// ExportCSV renders the whole directory for admins.
func (s *DirectoryService) ExportCSV(v Viewer) ([]byte, error) {
	if err := requireViewer(v); err != nil {
		return nil, err
	}
	admin, err := s.isConsoleAdmin(v)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, NewForbiddenError("Only admins can download CSV")
	}
	r, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(r.list, func(i, j int) bool { return r.list[i].Index < r.list[j].Index })
	return ExportCollaboratorsCSV(r.list)
}

// Import stores parsed spreadsheet rows, assigning indexes to rows without
// one. It is used to seed a fresh database.
func (s *DirectoryService) Import(list []*Collaborator) (int, error) {
	r, err := s.load()
	if err != nil {
		return 0, err
	}
	next := 0
	for _, c := range r.list {
		if c.Index > next {
			next = c.Index
		}
	}
	for _, c := range list {
		if c.Index > next {
			next = c.Index
		}
	}
	n := 0
	for _, c := range list {
		if c == nil || strings.TrimSpace(c.PrimaryEmail) == "" {
			continue
		}
		if c.Index <= 0 {
			next++
			c.Index = next
		}
		if err := s.store.SaveCollaborator(c); err != nil {
			return n, fmt.Errorf("import collaborator %d: %w", c.Index, err)
		}
		n++
	}
	return n, nil
}

func (s *DirectoryService) requireScopeAdmin(v Viewer, scope AdminScope) error {
	if err := requireViewer(v); err != nil {
		return err
	}
	ok, err := s.adminIn(scope, v.Email)
	if err != nil {
		return err
	}
	if !ok {
		return NewForbiddenError("Forbidden")
	}
	return nil
}

func (s *DirectoryService) ListAdmins(v Viewer, scope AdminScope) ([]string, error) {
	if err := s.requireScopeAdmin(v, scope); err != nil {
		return nil, err
	}
	admins, err := s.store.ListAdmins(scope)
	if err != nil {
		return nil, err
	}
	if admins == nil {
		admins = []string{}
	}
	return admins, nil
}

func (s *DirectoryService) AddAdmin(v Viewer, scope AdminScope, email string) error {
	if err := s.requireScopeAdmin(v, scope); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if !utils.IsValidEmail(email) {
		return NewInvalidError("Invalid request body")
	}
	exists, err := s.adminIn(scope, email)
	if err != nil {
		return err
	}
	if exists {
		return NewConflictError("User is already an admin")
	}
	if err := s.store.AddAdmin(scope, email); err != nil {
		return err
	}
	s.log.Info("admin added", zap.String("scope", string(scope)), zap.String("by", normalizeEmail(v.Email)))
	return nil
}

func (s *DirectoryService) DeleteAdmin(v Viewer, scope AdminScope, email string) error {
	if err := s.requireScopeAdmin(v, scope); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return NewInvalidError("Invalid request body")
	}
	exists, err := s.adminIn(scope, email)
	if err != nil {
		return err
	}
	if !exists {
		return NewNotFoundError("Admin not found")
	}
	if err := s.store.DeleteAdmin(scope, email); err != nil {
		return err
	}
	s.log.Info("admin removed", zap.String("scope", string(scope)), zap.String("by", normalizeEmail(v.Email)))
	return nil
}

// SendInvite emails an invitation to join the directory. Only admins and PIs
// may invite; Co-PIs may not.
func (s *DirectoryService) SendInvite(ctx context.Context, v Viewer, email, senderName string) error {
	if err := requireViewer(v); err != nil {
		return err
	}
	admin, err := s.isConsoleAdmin(v)
	if err != nil {
		return err
	}
	if !admin {
		r, err := s.load()
		if err != nil {
			return err
		}
		me := r.byPrimary(v.Email)
		if me == nil || me.Role != RolePI {
			return NewForbiddenError("Only PIs and Admins can send invites")
		}
	}
	email = strings.TrimSpace(email)
	if !utils.IsValidEmail(email) {
		return NewInvalidError("Invalid request body")
	}
	if s.notifier == nil {
		return fmt.Errorf("notifier not configured")
	}
	if strings.TrimSpace(senderName) == "" {
		senderName = "ENIGMA Team"
	}
	msg := Message{
		To:      email,
		Subject: "Invitation to Join ENIGMA Collaborators",
		Body: "Hello,\n\nYou have been invited by " + senderName + " to join the ENIGMA Collaborators directory.\n" +
			"Sign in to create your profile and join the team.\n\n" +
			"If you have any questions, please contact the ENIGMA team.\n\nBest regards,\nENIGMA Team\n",
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		return fmt.Errorf("send invite: %w", err)
	}
	return nil
}

// IsKnown reports whether email belongs to a collaborator or an admin of
// either scope.
func (s *DirectoryService) IsKnown(email string) (bool, error) {
	for _, scope := range []AdminScope{ScopeDirectory, ScopeDataRequest} {
		ok, err := s.adminIn(scope, email)
		if err != nil || ok {
			return ok, err
		}
	}
	r, err := s.load()
	if err != nil {
		return false, err
	}
	return r.byPrimary(email) != nil, nil
}
