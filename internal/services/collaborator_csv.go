package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// collaboratorColumns is the column order of the directory spreadsheet.
var collaboratorColumns = []string{
	"index", "timestamp", "primary_email", "email_list", "first_name", "last_name", "MI",
	"degrees", "orcid", "role", "profile_picture", "department_list", "university_list",
	"address_list", "city_list", "state_list", "country_list", "cohort_enigma_list",
	"cohort_orig_list", "pi_last_name", "members_initialized", "is_active", "active_members",
	"former_members", "cohort_contributors", "cohort_funding", "funding_ack", "disclosures",
	"blanket_opt_in",
}

// ExportCollaboratorsCSV renders the directory with list columns as JSON arrays.
func ExportCollaboratorsCSV(list []*Collaborator) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(collaboratorColumns); err != nil {
		return nil, err
	}
	for _, c := range list {
		row := collaboratorRecord(c)
		rec := make([]string, len(collaboratorColumns))
		for i, col := range collaboratorColumns {
			rec[i] = row[col]
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func collaboratorRecord(c *Collaborator) map[string]string {
	optIn := ""
	if c.BlanketOptIn != "" {
		optIn = "yes"
	}
	return map[string]string{
		"index":               strconv.Itoa(c.Index),
		"timestamp":           c.Timestamp,
		"primary_email":       strings.TrimSpace(c.PrimaryEmail),
		"email_list":          jsonList(c.EmailList),
		"first_name":          c.FirstName,
		"last_name":           c.LastName,
		"MI":                  c.MI,
		"degrees":             jsonList(c.Degrees),
		"orcid":               c.ORCID,
		"role":                c.Role,
		"profile_picture":     c.ProfilePicture,
		"department_list":     jsonList(c.DepartmentList),
		"university_list":     jsonList(c.UniversityList),
		"address_list":        jsonList(c.AddressList),
		"city_list":           jsonList(c.CityList),
		"state_list":          jsonList(c.StateList),
		"country_list":        jsonList(c.CountryList),
		"cohort_enigma_list":  jsonList(c.CohortEnigmaList),
		"cohort_orig_list":    jsonList(c.CohortOrigList),
		"pi_last_name":        jsonList(c.PILastName),
		"members_initialized": csvBool(c.MembersInitialized),
		"is_active":           csvBool(c.IsActive),
		"active_members":      jsonMembers(c.ActiveMembers),
		"former_members":      jsonMembers(c.FormerMembers),
		"cohort_contributors": jsonList(c.CohortContributors),
		"cohort_funding":      jsonList(c.CohortFunding),
		"funding_ack":         jsonList(c.FundingAck),
		"disclosures":         jsonList(c.Disclosures),
		"blanket_opt_in":      optIn,
	}
}

func jsonList(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func jsonMembers(ms []Member) string {
	if ms == nil {
		ms = []Member{}
	}
	b, _ := json.Marshal(ms)
	return string(b)
}

func csvBool(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

// ParseCollaboratorsCSV reads the directory spreadsheet. Columns are matched
// by header name and missing columns take their zero values, except
// is_active which defaults to true.
func ParseCollaboratorsCSV(r io.Reader) ([]*Collaborator, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read collaborators header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	var out []*Collaborator
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read collaborators line %d: %w", line, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		c, err := parseCollaboratorRecord(row)
		if err != nil {
			return nil, fmt.Errorf("collaborators line %d: %w", line, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseCollaboratorRecord(row map[string]string) (*Collaborator, error) {
	c := &Collaborator{
		Timestamp:      strings.TrimSpace(row["timestamp"]),
		PrimaryEmail:   strings.TrimSpace(row["primary_email"]),
		FirstName:      row["first_name"],
		LastName:       row["last_name"],
		MI:             row["MI"],
		ORCID:          row["orcid"],
		Role:           row["role"],
		ProfilePicture: row["profile_picture"],
		IsActive:       true,
	}
	if raw := strings.TrimSpace(row["index"]); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", raw)
		}
		c.Index = idx
	}
	if raw, ok := row["is_active"]; ok && strings.TrimSpace(raw) != "" {
		c.IsActive = strings.EqualFold(strings.TrimSpace(raw), "TRUE")
	}
	c.MembersInitialized = parseLooseBool(row["members_initialized"])
	if strings.HasPrefix(strings.ToLower(row["blanket_opt_in"]), "yes") {
		c.BlanketOptIn = "yes"
	}
	c.PILastName = parsePILastNames(row["pi_last_name"])
	c.EmailList = parseStringList(row["email_list"])
	c.Degrees = parseStringList(row["degrees"])
	c.DepartmentList = parseStringList(row["department_list"])
	c.UniversityList = parseStringList(row["university_list"])
	c.AddressList = parseStringList(row["address_list"])
	c.CityList = parseStringList(row["city_list"])
	c.StateList = parseStringList(row["state_list"])
	c.CountryList = parseStringList(row["country_list"])
	c.CohortEnigmaList = parseStringList(row["cohort_enigma_list"])
	c.CohortOrigList = parseStringList(row["cohort_orig_list"])
	c.CohortContributors = parseStringList(row["cohort_contributors"])
	c.CohortFunding = parseStringList(row["cohort_funding"])
	c.FundingAck = parseStringList(row["funding_ack"])
	c.Disclosures = parseStringList(row["disclosures"])
	c.ActiveMembers = parseMembers(row["active_members"])
	c.FormerMembers = parseMembers(row["former_members"])
	return c, nil
}

func parseLooseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// pi_last_name is a JSON list, a JSON string, or a legacy plain string.
func parsePILastNames(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return []string{raw}
	}
	switch t := v.(type) {
	case []any:
		return stringsOf(flatten(t))
	case string:
		if t == "" {
			return []string{}
		}
		return []string{t}
	case nil:
		return []string{}
	}
	return []string{fmt.Sprint(v)}
}

// decodeListCell unpacks a JSON list cell, tolerating double-encoded values
// and bare scalars.
func decodeListCell(raw string) []any {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "", "[]", "{}":
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return []any{raw}
	}
	if s, ok := v.(string); ok {
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return []any{s}
		}
		v = inner
	}
	if list, ok := v.([]any); ok {
		return flatten(list)
	}
	return []any{v}
}

func flatten(in []any) []any {
	out := make([]any, 0, len(in))
	for _, v := range in {
		if nested, ok := v.([]any); ok {
			out = append(out, flatten(nested)...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func stringsOf(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch t := it.(type) {
		case string:
			out = append(out, t)
		case nil:
		case map[string]any:
			b, _ := json.Marshal(t)
			out = append(out, string(b))
		default:
			out = append(out, fmt.Sprint(t))
		}
	}
	return out
}

func parseStringList(raw string) []string {
	return stringsOf(decodeListCell(raw))
}

func parseMembers(raw string) []Member {
	items := decodeListCell(raw)
	out := make([]Member, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Member{
			FirstName: mapString(m, "first_name"),
			LastName:  mapString(m, "last_name"),
			Email:     mapString(m, "email"),
			Role:      mapString(m, "role"),
		})
	}
	return out
}

func mapString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// ParseAdminsCSV reads a one-column admins sheet with an "email" header.
func ParseAdminsCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read admins: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	col := 0
	for i, h := range recs[0] {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), "email") {
			col = i
		}
	}
	var out []string
	for _, rec := range recs[1:] {
		if col < len(rec) {
			if e := strings.TrimSpace(rec[col]); e != "" {
				out = append(out, e)
			}
		}
	}
	return out, nil
}
