package fhir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// HandlingPreference represents the FHIR Prefer handling directive value.
// When handling=strict, the server must reject resources with unrecognized elements.
// When handling=lenient (default), unrecognized elements are silently ignored.
type HandlingPreference string

const (
	HandlingStrict  HandlingPreference = "strict"
	HandlingLenient HandlingPreference = "lenient"
)

// contextKeyHandling is the echo.Context key for storing the handling preference.
const contextKeyHandling = "fhir.handling"

// PreferReturnPreference represents the FHIR Prefer return directive value.
type PreferReturnPreference string

const (
	ReturnMinimal          PreferReturnPreference = "minimal"
	ReturnRepresentation   PreferReturnPreference = "representation"
	ReturnOperationOutcome PreferReturnPreference = "OperationOutcome"
)

// PreferDirective holds all parsed directives from a single Prefer header value.
type PreferDirective struct {
	Return   PreferReturnPreference
	Handling HandlingPreference
}

// ReturnOr returns the requested return preference, or def when the header
// did not carry a recognised one.
func (d PreferDirective) ReturnOr(def PreferReturnPreference) PreferReturnPreference {
	if d.Return == "" {
		return def
	}
	return d.Return
}

// ParsePreferHeader parses the return and handling directives of a Prefer
// header value. Directives may be separated by semicolons or commas;
// unrecognised values are ignored.
func ParsePreferHeader(prefer string) PreferDirective {
	d := PreferDirective{
		Handling: HandlingLenient,
	}

	prefer = strings.TrimSpace(prefer)
	if prefer == "" {
		return d
	}

	// Normalize: replace commas with semicolons so we only split once.
	normalized := strings.ReplaceAll(prefer, ",", ";")
	for _, part := range strings.Split(normalized, ";") {
		part = strings.TrimSpace(part)
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.Trim(strings.TrimSpace(val), `"`)

		switch key {
		case "return":
			switch {
			case strings.EqualFold(val, string(ReturnMinimal)):
				d.Return = ReturnMinimal
			case strings.EqualFold(val, string(ReturnRepresentation)):
				d.Return = ReturnRepresentation
			case strings.EqualFold(val, string(ReturnOperationOutcome)):
				d.Return = ReturnOperationOutcome
			}
		case "handling":
			switch HandlingPreference(strings.ToLower(val)) {
			case HandlingStrict:
				d.Handling = HandlingStrict
			case HandlingLenient:
				d.Handling = HandlingLenient
			}
		}
	}

	return d
}

// PreferHandlingMiddleware returns Echo middleware that parses the Prefer handling directive
// and stores it in the request context. It also sets the X-FHIR-Handling response header
// to indicate the applied handling mode.
func PreferHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			handling := ParsePreferHeader(c.Request().Header.Get("Prefer")).Handling
			c.Set(contextKeyHandling, handling)
			c.Response().Header().Set("X-FHIR-Handling", string(handling))
			return next(c)
		}
	}
}

// GetHandlingPreference retrieves the handling preference from the echo.Context.
// Returns HandlingLenient if no preference has been set.
func GetHandlingPreference(c echo.Context) HandlingPreference {
	if h, ok := c.Get(contextKeyHandling).(HandlingPreference); ok {
		return h
	}
	return HandlingLenient
}

// ValidateUnknownElements returns, sorted, the top-level keys of resource that
// are not in knownElements. resourceType, id and meta are always known.
func ValidateUnknownElements(resource map[string]any, knownElements map[string]bool) []string {
	var unknown []string
	for key := range resource {
		switch key {
		case "resourceType", "id", "meta":
			continue
		}
		if !knownElements[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// StrictModeOutcome reports unknown elements found under handling=strict.
func StrictModeOutcome(unknownElements []string) *OperationOutcome {
	b := NewOutcomeBuilder()
	for _, elem := range unknownElements {
		b.AddIssueWithLocation(IssueSeverityError, IssueTypeStructure,
			fmt.Sprintf("Unknown element '%s' found in resource", elem), elem)
	}
	return b.Build()
}

// PatientElements is the set of R4 Patient elements, excluding the universal
// resourceType, id and meta.
var PatientElements = map[string]bool{
	"identifier":           true,
	"active":               true,
	"name":                 true,
	"telecom":              true,
	"gender":               true,
	"birthDate":            true,
	"deceasedBoolean":      true,
	"deceasedDateTime":     true,
	"address":              true,
	"maritalStatus":        true,
	"multipleBirthBoolean": true,
	"multipleBirthInteger": true,
	"photo":                true,
	"contact":              true,
	"communication":        true,
	"generalPractitioner":  true,
	"managingOrganization": true,
	"link":                 true,
	"text":                 true,
	"contained":            true,
	"extension":            true,
	"modifierExtension":    true,
	"implicitRules":        true,
	"language":             true,
}
