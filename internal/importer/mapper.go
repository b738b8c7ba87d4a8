package importer

import (
	"strings"
	"time"

	"github.com/petitionqc/voterd/pkg/models"
)

// columnSetters maps source-file column names to voter field setters.
// Mapping is allow-listed: columns not named here (notably the
// GENERAL*/SPECIAL*/PRIMARY* voting-history columns) are silently
// dropped, so source files that grow new columns keep importing.
var columnSetters = map[string]func(v *models.Voter, s string){
	"SOS_VOTERID":          func(v *models.Voter, s string) { v.SOSVoterID = s },
	"COUNTY_NUMBER":        func(v *models.Voter, s string) { v.CountyNumber = s },
	"FIRST_NAME":           func(v *models.Voter, s string) { v.FirstName = s },
	"MIDDLE_NAME":          func(v *models.Voter, s string) { v.MiddleName = s },
	"LAST_NAME":            func(v *models.Voter, s string) { v.LastName = s },
	"RESIDENTIAL_ADDRESS1": func(v *models.Voter, s string) { v.ResidentialAddress1 = s },
	"RESIDENTIAL_ADDRESS2": func(v *models.Voter, s string) { v.ResidentialAddress2 = s },
	"RESIDENTIAL_CITY":     func(v *models.Voter, s string) { v.ResidentialCity = s },
	"RESIDENTIAL_STATE":    func(v *models.Voter, s string) { v.ResidentialState = s },
	"RESIDENTIAL_ZIP":      func(v *models.Voter, s string) { v.ResidentialZip = s },
	"CITY":                 func(v *models.Voter, s string) { v.City = s },
	"PRECINCT_CODE":        func(v *models.Voter, s string) { v.PrecinctCode = s },
	"PRECINCT_NAME":        func(v *models.Voter, s string) { v.PrecinctName = s },
	"WARD":                 func(v *models.Voter, s string) { v.Ward = s },
}

var dateSetters = map[string]func(v *models.Voter, t *time.Time){
	"DATE_OF_BIRTH":     func(v *models.Voter, t *time.Time) { v.DateOfBirth = t },
	"REGISTRATION_DATE": func(v *models.Voter, t *time.Time) { v.RegistrationDate = t },
}

// dateFormats are tried in order; the first match wins.
var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"01-02-2006",
}

// MapRow translates one source row into a voter record. header and
// record are positional; extra record fields beyond the header are
// ignored. Returns nil when the row carries neither identifier field
// after trimming. A bad date never rejects a row; the field is simply
// left unset.
func MapRow(header, record []string) *models.Voter {
	var v models.Voter

	for i, col := range header {
		if i >= len(record) {
			break
		}
		value := strings.TrimSpace(record[i])
		if value == "" {
			continue
		}
		if set, ok := columnSetters[col]; ok {
			set(&v, value)
		} else if setDate, ok := dateSetters[col]; ok {
			setDate(&v, parseDate(value))
		}
	}

	if !v.HasIdentifier() {
		return nil
	}
	return &v
}

func parseDate(value string) *time.Time {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
