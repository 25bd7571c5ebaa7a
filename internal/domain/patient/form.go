package patient

import (
	"net/url"
	"strings"

	"github.com/dwh/dwhfhir/internal/platform/fhir"
)

// FormToResource builds a Patient resource from submitted form values so
// that forms go through the same mapping as JSON bodies. Both the HTML
// form's column names and dotted FHIR paths (name.0.family) are accepted;
// a column name wins when both are sent.
func FormToResource(form url.Values) map[string]any {
	get := func(named string, dotted ...string) string {
		if v := strings.TrimSpace(form.Get(named)); v != "" {
			return v
		}
		for _, key := range dotted {
			if v := strings.TrimSpace(form.Get(key)); v != "" {
				return v
			}
		}
		return ""
	}

	doc := map[string]any{"resourceType": "Patient"}

	if id := get("id"); id != "" {
		doc["id"] = id
	}
	if ipp := get("ipp", "identifier.0.value"); ipp != "" {
		doc["identifier"] = []any{map[string]any{
			"system": IdentifierSystemIPP,
			"value":  ipp,
		}}
	}

	name := map[string]any{}
	if v := get("last_name", "name.0.family"); v != "" {
		name["family"] = v
	}
	if v := get("first_name", "name.0.given.0"); v != "" {
		name["given"] = []any{v}
	}
	if v := get("maiden_name", "name.0.maiden"); v != "" {
		name["maiden"] = v
	}
	if len(name) > 0 {
		doc["name"] = []any{name}
	}

	if v := get("sex", "gender"); v != "" {
		doc["gender"] = v
	}
	if v := get("birth_date", "birthDate"); v != "" {
		doc["birthDate"] = v
	}
	if v := get("phone_number", "telecom.0.value"); v != "" {
		doc["telecom"] = []any{map[string]any{"system": "phone", "value": v}}
	}
	if v := get("death_date", "deceasedDateTime"); v != "" {
		doc["deceasedDateTime"] = v
	}

	addr := map[string]any{}
	if v := get("residence_address", "address.0.line.0"); v != "" {
		addr["line"] = []any{v}
	}
	if v := get("residence_city", "address.0.city"); v != "" {
		addr["city"] = v
	}
	if v := get("residence_zip_code", "address.0.postalCode"); v != "" {
		addr["postalCode"] = v
	}
	if v := get("residence_country", "address.0.country"); v != "" {
		addr["country"] = v
	}
	if geo := formGeolocation(get("residence_latitude"), get("residence_longitude")); geo != nil {
		addr["extension"] = []any{geo}
	}
	if len(addr) > 0 {
		doc["address"] = []any{addr}
	}

	var exts []any
	place := map[string]any{}
	if v := get("birth_city"); v != "" {
		place["city"] = v
	}
	if v := get("birth_zip_code"); v != "" {
		place["postalCode"] = v
	}
	if v := get("birth_country"); v != "" {
		place["country"] = v
	}
	if geo := formGeolocation(get("birth_latitude"), get("birth_longitude")); geo != nil {
		place["extension"] = []any{geo}
	}
	if len(place) > 0 {
		exts = append(exts, map[string]any{
			"url":          fhir.ExtPatientBirthPlace,
			"valueAddress": place,
		})
	}
	if v := get("death_code"); v != "" {
		exts = append(exts, map[string]any{
			"url": fhir.ExtPatientDeathCause,
			"valueCodeableConcept": map[string]any{
				"coding": []any{map[string]any{"system": DeathCauseSystem, "code": v}},
			},
		})
	}
	if len(exts) > 0 {
		doc["extension"] = exts
	}

	return doc
}

// formGeolocation returns a geolocation extension when at least one
// coordinate was entered. Values stay strings; FromFHIR parses them.
func formGeolocation(lat, lng string) map[string]any {
	if lat == "" && lng == "" {
		return nil
	}
	var subs []any
	if lat != "" {
		subs = append(subs, map[string]any{"url": "latitude", "valueDecimal": lat})
	}
	if lng != "" {
		subs = append(subs, map[string]any{"url": "longitude", "valueDecimal": lng})
	}
	return map[string]any{"url": fhir.ExtGeolocation, "extension": subs}
}
