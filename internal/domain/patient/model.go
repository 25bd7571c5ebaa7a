package patient

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Record sex codes.
const (
	SexMale    = "M"
	SexFemale  = "F"
	SexOther   = "O"
	SexUnknown = "unknown"
)

// IdentifierSystemIPP is the identifier system of the hospital patient number.
const IdentifierSystemIPP = "urn:oid:1.2.250.1.213.1.4.8"

// DeathCauseSystem is the coding system of the death cause code.
const DeathCauseSystem = "urn:oid:1.2.250.1.213.1.4.5.2"

// Record is a row of the dwh_patient table.
type Record struct {
	ID                 int64            `db:"id" json:"id"`
	IPP                string           `db:"ipp" json:"ipp"`
	LastName           *string          `db:"last_name" json:"last_name,omitempty"`
	FirstName          *string          `db:"first_name" json:"first_name,omitempty"`
	MaidenName         *string          `db:"maiden_name" json:"maiden_name,omitempty"`
	Sex                *string          `db:"sex" json:"sex,omitempty"`
	BirthDate          *time.Time       `db:"birth_date" json:"birth_date,omitempty"`
	PhoneNumber        *string          `db:"phone_number" json:"phone_number,omitempty"`
	ResidenceAddress   *string          `db:"residence_address" json:"residence_address,omitempty"`
	ResidenceCity      *string          `db:"residence_city" json:"residence_city,omitempty"`
	ResidenceZipCode   *string          `db:"residence_zip_code" json:"residence_zip_code,omitempty"`
	ResidenceCountry   *string          `db:"residence_country" json:"residence_country,omitempty"`
	ResidenceLatitude  *decimal.Decimal `db:"residence_latitude" json:"residence_latitude,omitempty"`
	ResidenceLongitude *decimal.Decimal `db:"residence_longitude" json:"residence_longitude,omitempty"`
	DeathCode          *string          `db:"death_code" json:"death_code,omitempty"`
	DeathDate          *time.Time       `db:"death_date" json:"death_date,omitempty"`
	BirthCity          *string          `db:"birth_city" json:"birth_city,omitempty"`
	BirthZipCode       *string          `db:"birth_zip_code" json:"birth_zip_code,omitempty"`
	BirthCountry       *string          `db:"birth_country" json:"birth_country,omitempty"`
	BirthLatitude      *float64         `db:"birth_latitude" json:"birth_latitude,omitempty"`
	BirthLongitude     *float64         `db:"birth_longitude" json:"birth_longitude,omitempty"`
	UpdateDate         *time.Time       `db:"update_date" json:"update_date,omitempty"`
}

// maxLengths are the column widths of the string fields.
var maxLengths = []struct {
	field string
	max   int
	get   func(r *Record) *string
}{
	{"ipp", 30, func(r *Record) *string { return &r.IPP }},
	{"last_name", 100, func(r *Record) *string { return r.LastName }},
	{"first_name", 100, func(r *Record) *string { return r.FirstName }},
	{"maiden_name", 120, func(r *Record) *string { return r.MaidenName }},
	{"phone_number", 1000, func(r *Record) *string { return r.PhoneNumber }},
	{"residence_address", 1000, func(r *Record) *string { return r.ResidenceAddress }},
	{"residence_city", 200, func(r *Record) *string { return r.ResidenceCity }},
	{"residence_zip_code", 30, func(r *Record) *string { return r.ResidenceZipCode }},
	{"residence_country", 100, func(r *Record) *string { return r.ResidenceCountry }},
	{"death_code", 2, func(r *Record) *string { return r.DeathCode }},
	{"birth_city", 100, func(r *Record) *string { return r.BirthCity }},
	{"birth_zip_code", 10, func(r *Record) *string { return r.BirthZipCode }},
	{"birth_country", 100, func(r *Record) *string { return r.BirthCountry }},
}

// Validate checks the constraints the table enforces, so that they surface
// as field errors rather than database failures.
func (r *Record) Validate() *ValidationError {
	verr := &ValidationError{}
	if r.IPP == "" {
		verr.Add("ipp", "This field is required.")
	}
	for _, ml := range maxLengths {
		v := ml.get(r)
		if v == nil {
			continue
		}
		if n := utf8.RuneCountInString(*v); n > ml.max {
			verr.Add(ml.field, fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", ml.max, n))
		}
	}
	if r.Sex != nil {
		switch *r.Sex {
		case SexMale, SexFemale, SexOther, SexUnknown:
		default:
			verr.Add("sex", fmt.Sprintf("%q is not a valid choice.", *r.Sex))
		}
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

// DisplayName is the "LAST First" label used by the HTML pages.
func (r *Record) DisplayName() string {
	name := ""
	if r.LastName != nil {
		name = *r.LastName
	}
	if r.FirstName != nil {
		if name != "" {
			name += " "
		}
		name += *r.FirstName
	}
	if name == "" {
		return r.IPP
	}
	return name
}

func strPtr(s string) *string { return &s }
