package patient

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	fhirmodels "github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"

	"github.com/dwh/dwhfhir/internal/platform/fhir"
)

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	ts := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	prev := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = prev })
	return ts
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func float(f float64) *float64 { return &f }

func durandMarie() *Record {
	return &Record{
		ID:        7,
		IPP:       "12345",
		LastName:  strPtr("Durand"),
		FirstName: strPtr("Marie"),
		Sex:       strPtr(SexFemale),
		BirthDate: date(1980, time.May, 12),
	}
}

// fullRecord sets every field of the record.
func fullRecord() *Record {
	death := time.Date(2023, 11, 2, 14, 45, 0, 0, time.UTC)
	updated := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	return &Record{
		ID:                 3,
		IPP:                "8000123456",
		LastName:           strPtr("Martin"),
		FirstName:          strPtr("Paul"),
		MaidenName:         strPtr("Lefebvre"),
		Sex:                strPtr(SexMale),
		BirthDate:          date(1950, time.January, 31),
		PhoneNumber:        strPtr("0601020304"),
		ResidenceAddress:   strPtr("12 rue de la Paix"),
		ResidenceCity:      strPtr("Paris"),
		ResidenceZipCode:   strPtr("75002"),
		ResidenceCountry:   strPtr("France"),
		ResidenceLatitude:  dec("48.8698"),
		ResidenceLongitude: dec("2.3311"),
		DeathCode:          strPtr("R9"),
		DeathDate:          &death,
		BirthCity:          strPtr("Lyon"),
		BirthZipCode:       strPtr("69001"),
		BirthCountry:       strPtr("France"),
		BirthLatitude:      float(45.7676),
		BirthLongitude:     float(4.8344),
		UpdateDate:         &updated,
	}
}

func decode(t *testing.T, o fhir.Object) map[string]any {
	t.Helper()
	b, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func keysOf(o fhir.Object) []string {
	keys := make([]string, len(o))
	for i, f := range o {
		keys[i] = f.Key
	}
	return keys
}

func TestToFHIR_DurandMarie(t *testing.T) {
	ts := fixedNow(t)
	doc := ToFHIR(durandMarie())

	wantKeys := []string{"resourceType", "id", "identifier", "active", "name", "telecom", "gender", "birthDate", "meta"}
	if got := keysOf(doc); !reflect.DeepEqual(got, wantKeys) {
		t.Errorf("keys = %v, want %v", got, wantKeys)
	}

	m := decode(t, doc)
	if m["gender"] != "female" {
		t.Errorf("expected gender female, got %v", m["gender"])
	}
	if m["birthDate"] != "1980-05-12" {
		t.Errorf("expected birthDate 1980-05-12, got %v", m["birthDate"])
	}
	if m["id"] != "7" {
		t.Errorf("expected id \"7\", got %v", m["id"])
	}
	for _, key := range []string{"address", "extension", "deceasedDateTime", "photo", "maritalStatus"} {
		if _, ok := m[key]; ok {
			t.Errorf("expected no %q key", key)
		}
	}

	name := m["name"].([]any)[0].(map[string]any)
	if name["family"] != "Durand" || !reflect.DeepEqual(name["given"], []any{"Marie"}) {
		t.Errorf("unexpected name: %v", name)
	}
	if _, ok := name["maiden"]; ok {
		t.Error("maiden must be omitted when unset")
	}

	if telecom, ok := m["telecom"].([]any); !ok || len(telecom) != 0 {
		t.Errorf("expected empty telecom list, got %v", m["telecom"])
	}

	ident := m["identifier"].([]any)[0].(map[string]any)
	if ident["system"] != IdentifierSystemIPP || ident["value"] != "12345" {
		t.Errorf("unexpected identifier: %v", ident)
	}

	meta := m["meta"].(map[string]any)
	if meta["versionId"] != "1" || meta["lastUpdated"] != ts.Format(time.RFC3339) {
		t.Errorf("unexpected meta: %v", meta)
	}
}

func TestToFHIR_Gender(t *testing.T) {
	tests := []struct {
		sex  *string
		want string
	}{
		{strPtr(SexMale), "male"},
		{strPtr(SexFemale), "female"},
		{strPtr(SexOther), "other"},
		{strPtr(SexUnknown), "unknown"},
		{nil, "unknown"},
	}
	for _, tt := range tests {
		got := decode(t, ToFHIR(&Record{IPP: "1", Sex: tt.sex}))["gender"]
		if got != tt.want {
			t.Errorf("gender(%v) = %v, want %s", deref(tt.sex), got, tt.want)
		}
	}
}

func TestToFHIR_NoIDBeforeCreate(t *testing.T) {
	if _, ok := decode(t, ToFHIR(&Record{IPP: "1"}))["id"]; ok {
		t.Error("expected no id for an unsaved record")
	}
}

func TestToFHIR_FullRecord(t *testing.T) {
	m := decode(t, ToFHIR(fullRecord()))

	if m["deceasedDateTime"] != "2023-11-02T14:45:00Z" {
		t.Errorf("unexpected deceasedDateTime: %v", m["deceasedDateTime"])
	}
	if m["meta"].(map[string]any)["lastUpdated"] != "2024-01-15T08:00:00Z" {
		t.Errorf("expected lastUpdated from the update date, got %v", m["meta"])
	}

	addr := m["address"].([]any)[0].(map[string]any)
	if addr["use"] != "home" || addr["type"] != "both" || addr["city"] != "Paris" {
		t.Errorf("unexpected address: %v", addr)
	}
	geo := addr["extension"].([]any)[0].(map[string]any)
	if geo["url"] != fhir.ExtGeolocation {
		t.Errorf("unexpected address extension: %v", geo)
	}
	lat := geo["extension"].([]any)[0].(map[string]any)
	if lat["url"] != "latitude" || lat["valueDecimal"] != 48.8698 {
		t.Errorf("unexpected latitude: %v", lat)
	}

	exts := m["extension"].([]any)
	urls := make([]string, len(exts))
	for i, e := range exts {
		urls[i] = e.(map[string]any)["url"].(string)
	}
	want := []string{fhir.ExtPatientBirthPlace, fhir.ExtPatientDeathDate, fhir.ExtPatientDeathCause}
	if !reflect.DeepEqual(urls, want) {
		t.Errorf("extension urls = %v, want %v", urls, want)
	}

	place := exts[0].(map[string]any)["valueAddress"].(map[string]any)
	if place["city"] != "Lyon" || place["extension"] == nil {
		t.Errorf("unexpected birth place: %v", place)
	}
	deathDate := exts[1].(map[string]any)["valueDateTime"]
	if deathDate != m["deceasedDateTime"] {
		t.Errorf("death date extension %v differs from deceasedDateTime %v", deathDate, m["deceasedDateTime"])
	}
	coding := exts[2].(map[string]any)["valueCodeableConcept"].(map[string]any)["coding"].([]any)[0].(map[string]any)
	if coding["system"] != DeathCauseSystem || coding["code"] != "R9" {
		t.Errorf("unexpected death cause coding: %v", coding)
	}
}

func TestToFHIR_GeolocationNeedsBothCoordinates(t *testing.T) {
	r := &Record{
		IPP:               "1",
		ResidenceCity:     strPtr("Paris"),
		ResidenceLatitude: dec("48.85"),
		BirthCity:         strPtr("Lyon"),
		BirthLongitude:    float(4.83),
	}
	m := decode(t, ToFHIR(r))

	addr := m["address"].([]any)[0].(map[string]any)
	if _, ok := addr["extension"]; ok {
		t.Error("residence geolocation emitted with a single coordinate")
	}
	if line, ok := addr["line"].([]any); !ok || len(line) != 0 {
		t.Errorf("expected empty line list, got %v", addr["line"])
	}
	place := m["extension"].([]any)[0].(map[string]any)["valueAddress"].(map[string]any)
	if _, ok := place["extension"]; ok {
		t.Error("birth geolocation emitted with a single coordinate")
	}
}

func TestToFHIR_MaidenName(t *testing.T) {
	r := &Record{IPP: "1", MaidenName: strPtr("Lefebvre")}
	m := decode(t, ToFHIR(r))
	name := m["name"].([]any)[0].(map[string]any)
	if name["maiden"] != "Lefebvre" {
		t.Errorf("expected maiden Lefebvre, got %v", name["maiden"])
	}
	if _, ok := name["family"]; ok {
		t.Error("expected no family when last name is unset")
	}
}

func TestToFHIR_ConformsToR4Model(t *testing.T) {
	b, err := json.Marshal(ToFHIR(fullRecord()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var p fhirmodels.Patient
	if err := json.Unmarshal(b, &p); err != nil {
		t.Fatalf("resource does not decode as an R4 Patient: %v", err)
	}

	if p.Id == nil || *p.Id != "3" {
		t.Errorf("unexpected id: %v", p.Id)
	}
	if p.Gender == nil || *p.Gender != fhirmodels.AdministrativeGenderMale {
		t.Errorf("unexpected gender: %v", p.Gender)
	}
	if p.BirthDate == nil || *p.BirthDate != "1950-01-31" {
		t.Errorf("unexpected birthDate: %v", p.BirthDate)
	}
	if len(p.Identifier) != 1 || p.Identifier[0].Value == nil || *p.Identifier[0].Value != "8000123456" {
		t.Errorf("unexpected identifier: %+v", p.Identifier)
	}
	if len(p.Name) != 1 || p.Name[0].Family == nil || *p.Name[0].Family != "Martin" {
		t.Errorf("unexpected name: %+v", p.Name)
	}
	if len(p.Address) != 1 || p.Address[0].City == nil || *p.Address[0].City != "Paris" {
		t.Errorf("unexpected address: %+v", p.Address)
	}
	if len(p.Extension) != 3 || p.Extension[0].Url != fhir.ExtPatientBirthPlace {
		t.Errorf("unexpected extensions: %+v", p.Extension)
	}
}
