package patient

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dwh/dwhfhir/internal/platform/fhir"
)

// dateTimeLayouts are tried in order for deceasedDateTime. Values without a
// zone are read as UTC.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

// FromFHIR maps a decoded Patient resource onto a record. id is the id of
// the record being replaced, or 0 for a create; a body id that disagrees
// with it is rejected. Every record field is set, absent members becoming
// nil, so the result is a full replacement.
//
// The returned error is a *ValidationError.
func FromFHIR(doc map[string]any, id int64) (*Record, error) {
	verr := &ValidationError{}
	r := &Record{ID: id}

	if rt, _ := text(doc["resourceType"]); rt != "Patient" {
		verr.Add("resourceType", fmt.Sprintf("expected \"Patient\", got %q", rt))
	}
	if id != 0 {
		if bodyID, ok := text(doc["id"]); ok && bodyID != strconv.FormatInt(id, 10) {
			verr.Add("id", fmt.Sprintf("resource id %q does not match the request id %d", bodyID, id))
		}
	}

	ipp, ok := identifierValue(doc["identifier"])
	if !ok {
		verr.Add("identifier", "an identifier with system "+IdentifierSystemIPP+" is required")
	}
	r.IPP = ipp

	if name := first(doc["name"]); name != nil {
		r.LastName = optText(name["family"])
		if given := list(name["given"]); len(given) > 0 {
			r.FirstName = optText(given[0])
		}
		r.MaidenName = optText(name["maiden"])
	}

	r.Sex = strPtr(sexFromGender(doc["gender"]))

	if raw, ok := text(doc["birthDate"]); ok {
		t, err := parseDate(raw)
		if err != nil {
			verr.Add("birth_date", err.Error())
		} else {
			r.BirthDate = &t
		}
	}

	r.PhoneNumber = phone(doc["telecom"])

	deceased, ok := text(doc["deceasedDateTime"])
	if !ok {
		if ext := findExtension(doc["extension"], fhir.ExtPatientDeathDate); ext != nil {
			deceased, ok = text(ext["valueDateTime"])
		}
	}
	if ok {
		t, err := parseDateTime(deceased)
		if err != nil {
			verr.Add("death_date", err.Error())
		} else {
			r.DeathDate = &t
		}
	}

	addr := first(doc["address"])
	if addr != nil {
		if line := list(addr["line"]); len(line) > 0 {
			r.ResidenceAddress = optText(line[0])
		}
		r.ResidenceCity = optText(addr["city"])
		r.ResidenceZipCode = optText(addr["postalCode"])
		r.ResidenceCountry = optText(addr["country"])
	}

	// Residence coordinates live on the address; the top-level extension
	// is still read for older payloads.
	geo := findExtension(addr["extension"], fhir.ExtGeolocation)
	if geo == nil {
		geo = findExtension(doc["extension"], fhir.ExtGeolocation)
	}
	if geo != nil {
		lat, lng := coordinates(geo)
		r.ResidenceLatitude = parseDecimalCoordinate(lat, "residence_latitude", verr)
		r.ResidenceLongitude = parseDecimalCoordinate(lng, "residence_longitude", verr)
	}

	if bp := findExtension(doc["extension"], fhir.ExtPatientBirthPlace); bp != nil {
		place := object(bp["valueAddress"])
		r.BirthCity = optText(place["city"])
		r.BirthZipCode = optText(place["postalCode"])
		r.BirthCountry = optText(place["country"])

		bgeo := findExtension(place["extension"], fhir.ExtGeolocation)
		if bgeo == nil {
			bgeo = findExtension(bp["extension"], fhir.ExtGeolocation)
		}
		if bgeo != nil {
			lat, lng := coordinates(bgeo)
			r.BirthLatitude = parseFloatCoordinate(lat, "birth_latitude", verr)
			r.BirthLongitude = parseFloatCoordinate(lng, "birth_longitude", verr)
		}
	}

	if dc := findExtension(doc["extension"], fhir.ExtPatientDeathCause); dc != nil {
		coding := first(object(dc["valueCodeableConcept"])["coding"])
		r.DeathCode = optText(coding["code"])
	}

	verr.Merge(r.Validate())
	if !verr.Empty() {
		return nil, verr
	}
	return r, nil
}

// sexFromGender maps an administrative gender onto a record sex code.
// Record codes are accepted as well, for form input. Anything else,
// including "unknown", becomes O.
func sexFromGender(v any) string {
	g, _ := text(v)
	switch strings.ToLower(g) {
	case "male", "m":
		return SexMale
	case "female", "f":
		return SexFemale
	}
	return SexOther
}

func identifierValue(v any) (string, bool) {
	for _, item := range list(v) {
		ident := object(item)
		if sys, _ := text(ident["system"]); sys != IdentifierSystemIPP {
			continue
		}
		if value, ok := text(ident["value"]); ok {
			return value, true
		}
	}
	return "", false
}

func phone(v any) *string {
	for _, item := range list(v) {
		cp := object(item)
		if sys, _ := text(cp["system"]); sys == "phone" {
			return optText(cp["value"])
		}
	}
	return nil
}

func findExtension(v any, url string) map[string]any {
	for _, item := range list(v) {
		ext := object(item)
		if u, _ := text(ext["url"]); u == url {
			return ext
		}
	}
	return nil
}

// coordinates returns the raw latitude and longitude values of a
// geolocation extension.
func coordinates(geo map[string]any) (lat, lng any) {
	for _, item := range list(geo["extension"]) {
		sub := object(item)
		switch u, _ := text(sub["url"]); u {
		case "latitude":
			lat = sub["valueDecimal"]
		case "longitude":
			lng = sub["valueDecimal"]
		}
	}
	return lat, lng
}

// coordinateText normalises a number or string coordinate, accepting a
// decimal comma.
func coordinateText(v any) (string, bool) {
	s, ok := text(v)
	if !ok {
		return "", false
	}
	return strings.ReplaceAll(strings.TrimSpace(s), ",", "."), true
}

func parseDecimalCoordinate(v any, field string, verr *ValidationError) *decimal.Decimal {
	s, ok := coordinateText(v)
	if !ok {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		verr.Add(field, fmt.Sprintf("%q is not a valid decimal number", s))
		return nil
	}
	return &d
}

func parseFloatCoordinate(v any, field string, verr *ValidationError) *float64 {
	s, ok := coordinateText(v)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		verr.Add(field, fmt.Sprintf("%q is not a valid number", s))
		return nil
	}
	return &f
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := parseDateTime(s); err == nil {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("%q is not a valid date, expected YYYY-MM-DD", s)
}

func parseDateTime(s string) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a valid datetime, expected ISO 8601", s)
}

// text returns v as a non-empty string. Numbers are accepted in their
// textual form.
func text(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func optText(v any) *string {
	if s, ok := text(v); ok {
		return &s
	}
	return nil
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func first(v any) map[string]any {
	if l := list(v); len(l) > 0 {
		return object(l[0])
	}
	return nil
}
