package services

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/npnl/enigma-request/internal/reqdoc"
)

const (
	RoleAdmin  = "Admin"
	RolePI     = "PI"
	RoleCoPI   = "Co-PI"
	RoleMember = "Member"
)

// Member is an entry in a PI's active or former member list.
type Member struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"`
}

type Institution struct {
	Department string `json:"department"`
	University string `json:"university"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
}

// Institutions decodes either a single institution object or a list.
type Institutions []Institution

func (in *Institutions) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*in = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var one Institution
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*in = Institutions{one}
		return nil
	}
	var many []Institution
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*in = many
	return nil
}

// StringList decodes either a JSON string or a list of strings. An empty
// string decodes to an empty list.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*l = StringList{}
		} else {
			*l = StringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// Collaborator is one row of the collaborators directory.
type Collaborator struct {
	Index              int      `json:"index"`
	Timestamp          string   `json:"timestamp"`
	PrimaryEmail       string   `json:"primary_email"`
	EmailList          []string `json:"email_list"`
	FirstName          string   `json:"first_name"`
	LastName           string   `json:"last_name"`
	MI                 string   `json:"MI"`
	Degrees            []string `json:"degrees"`
	ORCID              string   `json:"orcid"`
	Role               string   `json:"role"`
	ProfilePicture     string   `json:"profile_picture"`
	DepartmentList     []string `json:"department_list"`
	UniversityList     []string `json:"university_list"`
	AddressList        []string `json:"address_list"`
	CityList           []string `json:"city_list"`
	StateList          []string `json:"state_list"`
	CountryList        []string `json:"country_list"`
	CohortEnigmaList   []string `json:"cohort_enigma_list"`
	CohortOrigList     []string `json:"cohort_orig_list"`
	PILastName         []string `json:"pi_last_name"`
	MembersInitialized bool     `json:"members_initialized"`
	IsActive           bool     `json:"is_active"`
	ActiveMembers      []Member `json:"active_members"`
	FormerMembers      []Member `json:"former_members"`
	CohortContributors []string `json:"cohort_contributors"`
	CohortFunding      []string `json:"cohort_funding"`
	FundingAck         []string `json:"funding_ack"`
	Disclosures        []string `json:"disclosures"`
	BlanketOptIn       string   `json:"blanket_opt_in"`
}

// IsPI reports whether the collaborator leads a cohort team.
func (c *Collaborator) IsPI() bool { return c.Role == RolePI || c.Role == RoleCoPI }

// HasEmail matches the primary address or any secondary address.
func (c *Collaborator) HasEmail(email string) bool {
	email = normalizeEmail(email)
	if email == "" {
		return false
	}
	if normalizeEmail(c.PrimaryEmail) == email {
		return true
	}
	for _, e := range c.EmailList {
		if normalizeEmail(e) == email {
			return true
		}
	}
	return false
}

// HasPI reports whether lastName is one of the collaborator's PIs.
func (c *Collaborator) HasPI(lastName string) bool {
	lastName = strings.ToLower(strings.TrimSpace(lastName))
	if lastName == "" {
		return false
	}
	for _, pi := range c.PILastName {
		if strings.ToLower(strings.TrimSpace(pi)) == lastName {
			return true
		}
	}
	return false
}

func (c *Collaborator) asMember() Member {
	role := c.Role
	if role == "" {
		role = RoleMember
	}
	return Member{FirstName: c.FirstName, LastName: c.LastName, Email: c.PrimaryEmail, Role: role}
}

func (c *Collaborator) clone() *Collaborator {
	cp := *c
	cp.EmailList = append([]string(nil), c.EmailList...)
	cp.PILastName = append([]string(nil), c.PILastName...)
	cp.ActiveMembers = append([]Member(nil), c.ActiveMembers...)
	cp.FormerMembers = append([]Member(nil), c.FormerMembers...)
	return &cp
}

// AdminScope separates the directory console admins from the data-request
// admins.
type AdminScope string

const (
	ScopeDirectory   AdminScope = "directory"
	ScopeDataRequest AdminScope = "data_request"
)

// ParseAdminScope accepts the two scope names; empty means directory.
func ParseAdminScope(s string) (AdminScope, error) {
	switch AdminScope(strings.TrimSpace(s)) {
	case "", ScopeDirectory:
		return ScopeDirectory, nil
	case ScopeDataRequest:
		return ScopeDataRequest, nil
	}
	return "", NewInvalidError("unknown admin scope")
}

// DataRequest is a submitted request document with its envelope.
type DataRequest struct {
	FileName       string          `json:"file_name"`
	Time           time.Time       `json:"time"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Data           reqdoc.Document `json:"data"`
	Status         string          `json:"status"`
	ProposalStatus string          `json:"proposal_status,omitempty"`
}

// Account is a local sign-in identity.
type Account struct {
	Email     string
	PassHash  []byte
	CreatedAt time.Time
}

// Viewer is the authenticated caller of a directory operation.
type Viewer struct {
	Email string
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// cleanList trims every entry and drops the blank ones.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// cleanNames is cleanList for PI last names, which match case-insensitively,
// so later spellings of a name already listed are dropped.
func cleanNames(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, n := range cleanList(in) {
		if key := strings.ToLower(n); !seen[key] {
			seen[key] = true
			out = append(out, n)
		}
	}
	return out
}
