package models

import (
	"strings"
	"time"
)

// Voter is one voter-registration entry from a county voter file.
// It is the reference record used to verify petition signatures.
// All fields except the identifiers are optional; optional dates are nil
// when the source file carried no parseable value.
type Voter struct {
	ID           int64  `json:"id,omitempty"`
	SOSVoterID   string `json:"sos_voterid,omitempty"`
	CountyNumber string `json:"county_number,omitempty"`

	FirstName  string `json:"first_name,omitempty"`
	MiddleName string `json:"middle_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`

	ResidentialAddress1 string `json:"residential_address1,omitempty"`
	ResidentialAddress2 string `json:"residential_address2,omitempty"`
	ResidentialCity     string `json:"residential_city,omitempty"`
	ResidentialState    string `json:"residential_state,omitempty"`
	ResidentialZip      string `json:"residential_zip,omitempty"`

	// City of registration; may differ from ResidentialCity for
	// unincorporated areas.
	City string `json:"city,omitempty"`

	DateOfBirth      *time.Time `json:"date_of_birth,omitempty"`
	RegistrationDate *time.Time `json:"registration_date,omitempty"`

	PrecinctCode string `json:"precinct_code,omitempty"`
	PrecinctName string `json:"precinct_name,omitempty"`
	Ward         string `json:"ward,omitempty"`
}

// FullName joins the non-empty name parts with single spaces.
func (v *Voter) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{v.FirstName, v.MiddleName, v.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// HasIdentifier reports whether the record carries at least one of the
// two identifier fields. Records without either are rejected at mapping
// time and never reach the store.
func (v *Voter) HasIdentifier() bool {
	return v.SOSVoterID != "" || v.CountyNumber != ""
}
