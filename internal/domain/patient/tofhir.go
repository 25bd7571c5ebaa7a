package patient

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dwh/dwhfhir/internal/platform/fhir"
)

// now is replaced in tests.
var now = time.Now

// element is one top-level member of the emitted Patient resource.
type element struct {
	name  string
	value func(r *Record) any
}

// patientElements lists the resource members in emission order.
var patientElements = []element{
	{"resourceType", func(*Record) any { return "Patient" }},
	{"id", resourceID},
	{"identifier", identifier},
	{"active", func(*Record) any { return true }},
	{"name", humanName},
	{"telecom", telecom},
	{"gender", gender},
	{"birthDate", birthDate},
	{"deceasedDateTime", deceasedDateTime},
	{"address", address},
	{"maritalStatus", unset},
	{"multipleBirthBoolean", unset},
	{"photo", none},
	{"contact", none},
	{"communication", none},
	{"generalPractitioner", none},
	{"managingOrganization", unset},
	{"link", none},
	{"extension", extensions},
	{"meta", meta},
}

// optionalLists are the top-level repeating members dropped when empty.
var optionalLists = []string{
	"address", "extension", "photo", "contact", "communication", "generalPractitioner", "link",
}

// ToFHIR renders the record as a FHIR R4 Patient resource.
func ToFHIR(r *Record) fhir.Object {
	doc := make(fhir.Object, 0, len(patientElements))
	for _, el := range patientElements {
		doc = append(doc, fhir.Field{Key: el.name, Value: el.value(r)})
	}
	return fhir.Prune(doc, optionalLists...)
}

func unset(*Record) any { return nil }

func none(*Record) any { return []fhir.Object{} }

func resourceID(r *Record) any {
	if r.ID == 0 {
		return nil
	}
	return strconv.FormatInt(r.ID, 10)
}

func identifier(r *Record) any {
	return []fhir.Object{{
		{Key: "system", Value: IdentifierSystemIPP},
		{Key: "value", Value: r.IPP},
	}}
}

func humanName(r *Record) any {
	given := []string{}
	if r.FirstName != nil {
		given = append(given, *r.FirstName)
	}
	name := fhir.Object{
		{Key: "use", Value: "official"},
		{Key: "family", Value: optString(r.LastName)},
		{Key: "given", Value: given},
	}
	if r.MaidenName != nil {
		name = name.Set("maiden", *r.MaidenName)
	}
	return []fhir.Object{name}
}

func telecom(r *Record) any {
	if r.PhoneNumber == nil {
		return []fhir.Object{}
	}
	return []fhir.Object{{
		{Key: "system", Value: "phone"},
		{Key: "value", Value: *r.PhoneNumber},
		{Key: "use", Value: "home"},
	}}
}

func gender(r *Record) any {
	if r.Sex == nil {
		return "unknown"
	}
	switch *r.Sex {
	case SexMale:
		return "male"
	case SexFemale:
		return "female"
	case SexOther:
		return "other"
	}
	return "unknown"
}

func birthDate(r *Record) any {
	if r.BirthDate == nil {
		return nil
	}
	return r.BirthDate.Format(time.DateOnly)
}

func deceasedDateTime(r *Record) any {
	if r.DeathDate == nil {
		return nil
	}
	return r.DeathDate.Format(time.RFC3339Nano)
}

func address(r *Record) any {
	if r.ResidenceAddress == nil && r.ResidenceCity == nil && r.ResidenceZipCode == nil && r.ResidenceCountry == nil {
		return []fhir.Object{}
	}
	line := []string{}
	if r.ResidenceAddress != nil {
		line = append(line, *r.ResidenceAddress)
	}
	addr := fhir.Object{
		{Key: "use", Value: "home"},
		{Key: "type", Value: "both"},
		{Key: "line", Value: line},
		{Key: "city", Value: optString(r.ResidenceCity)},
		{Key: "postalCode", Value: optString(r.ResidenceZipCode)},
		{Key: "country", Value: optString(r.ResidenceCountry)},
	}
	if r.ResidenceLatitude != nil && r.ResidenceLongitude != nil {
		addr = addr.Set("extension", []fhir.Object{
			geolocation(decimalNumber(*r.ResidenceLatitude), decimalNumber(*r.ResidenceLongitude)),
		})
	}
	return []fhir.Object{addr}
}

func extensions(r *Record) any {
	exts := []fhir.Object{}

	if r.BirthCity != nil || r.BirthZipCode != nil || r.BirthCountry != nil {
		place := fhir.Object{
			{Key: "city", Value: optString(r.BirthCity)},
			{Key: "postalCode", Value: optString(r.BirthZipCode)},
			{Key: "country", Value: optString(r.BirthCountry)},
		}
		if r.BirthLatitude != nil && r.BirthLongitude != nil {
			place = place.Set("extension", []fhir.Object{
				geolocation(floatNumber(*r.BirthLatitude), floatNumber(*r.BirthLongitude)),
			})
		}
		exts = append(exts, fhir.Object{
			{Key: "url", Value: fhir.ExtPatientBirthPlace},
			{Key: "valueAddress", Value: place},
		})
	}

	if r.DeathDate != nil {
		exts = append(exts, fhir.Object{
			{Key: "url", Value: fhir.ExtPatientDeathDate},
			{Key: "valueDateTime", Value: r.DeathDate.Format(time.RFC3339Nano)},
		})
	}

	if r.DeathCode != nil {
		exts = append(exts, fhir.Object{
			{Key: "url", Value: fhir.ExtPatientDeathCause},
			{Key: "valueCodeableConcept", Value: fhir.Object{
				{Key: "coding", Value: []fhir.Object{{
					{Key: "system", Value: DeathCauseSystem},
					{Key: "code", Value: *r.DeathCode},
				}}},
			}},
		})
	}

	return exts
}

func meta(r *Record) any {
	updated := now()
	if r.UpdateDate != nil {
		updated = *r.UpdateDate
	}
	return fhir.Object{
		{Key: "versionId", Value: "1"},
		{Key: "lastUpdated", Value: updated.Format(time.RFC3339)},
	}
}

func geolocation(lat, lng json.Number) fhir.Object {
	return fhir.Object{
		{Key: "url", Value: fhir.ExtGeolocation},
		{Key: "extension", Value: []fhir.Object{
			{{Key: "url", Value: "latitude"}, {Key: "valueDecimal", Value: lat}},
			{{Key: "url", Value: "longitude"}, {Key: "valueDecimal", Value: lng}},
		}},
	}
}

func decimalNumber(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func floatNumber(f float64) json.Number {
	return json.Number(strconv.FormatFloat(f, 'f', -1, 64))
}

// optString returns nil for a nil pointer so that the key is pruned.
func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
