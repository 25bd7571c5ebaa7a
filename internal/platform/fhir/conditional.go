package fhir

import (
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

// HeaderIfNoneExist is the FHIR conditional create header.
const HeaderIfNoneExist = "If-None-Exist"

// ConditionalCreate describes the If-None-Exist criteria of a create request.
type ConditionalCreate struct {
	// Params holds the parsed search criteria. It may be empty when the
	// header is present but carries no usable query.
	Params map[string]string
}

// Identifier returns the value of an "identifier" criterion, stripped of
// an optional "system|" prefix. ok is false when no value is given.
func (cc ConditionalCreate) Identifier() (system, value string, ok bool) {
	raw, found := cc.Params["identifier"]
	if !found {
		return "", "", false
	}
	if sys, val, hasSys := strings.Cut(raw, "|"); hasSys {
		system, raw = sys, val
	}
	if raw == "" {
		return system, "", false
	}
	return system, raw, true
}

// ConditionalCreateFrom reports whether the request carries an If-None-Exist
// header and returns its parsed criteria.
func ConditionalCreateFrom(c echo.Context) (ConditionalCreate, bool) {
	header, present := c.Request().Header[HeaderIfNoneExist]
	if !present {
		return ConditionalCreate{}, false
	}
	var query string
	if len(header) > 0 {
		query = header[0]
	}
	return ConditionalCreate{Params: parseSearchString(query)}, true
}

// parseSearchString parses a search query string like "identifier=foo&name=bar" into a map.
func parseSearchString(query string) map[string]string {
	params := map[string]string{}
	query = strings.TrimSpace(query)
	if i := strings.Index(query, "?"); i >= 0 {
		query = query[i+1:]
	}
	for _, part := range strings.Split(query, "&") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		if unescaped, err := url.QueryUnescape(val); err == nil {
			val = unescaped
		}
		if key != "" {
			params[key] = val
		}
	}
	return params
}
