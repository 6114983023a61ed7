package utils

import (
	"regexp"
	"strings"
)

var (
	requestorEmailRe    = regexp.MustCompile(`^([\w.%+-]+)@([\w-]+\.)+([\w]{2,})$`)
	collaboratorEmailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	orcidDigitsRe       = regexp.MustCompile(`^\d{16}$`)
)

// IsValidRequestorEmail checks the address a data request is submitted under.
func IsValidRequestorEmail(email string) bool {
	return requestorEmailRe.MatchString(strings.TrimSpace(email))
}

// IsValidEmail is the looser check applied to directory entries.
func IsValidEmail(email string) bool {
	return collaboratorEmailRe.MatchString(strings.TrimSpace(email))
}

// IsValidORCID accepts an empty value, NA or N/A, or sixteen digits with
// optional hyphens.
func IsValidORCID(orcid string) bool {
	v := strings.TrimSpace(orcid)
	switch strings.ToUpper(v) {
	case "", "NA", "N/A":
		return true
	}
	return orcidDigitsRe.MatchString(strings.ReplaceAll(v, "-", ""))
}
