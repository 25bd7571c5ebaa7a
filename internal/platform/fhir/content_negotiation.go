package fhir

import (
	"errors"
	"mime"
	"strings"

	"github.com/labstack/echo/v4"
)

// FHIRContentType is the FHIR JSON content type with charset.
const FHIRContentType = "application/fhir+json; charset=utf-8"

var (
	// ErrUnsupportedMediaType is returned for request bodies that are neither JSON nor form data.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrNotAcceptable is returned when the client accepts none of the offered formats.
	ErrNotAcceptable = errors.New("not acceptable")
)

// Format is a response representation.
type Format int

const (
	FormatJSON Format = iota
	FormatHTML
)

func (f Format) String() string {
	if f == FormatHTML {
		return "html"
	}
	return "json"
}

// BodyKind is the encoding of a request body.
type BodyKind int

const (
	BodyJSON BodyKind = iota
	BodyForm
)

// NegotiateFormat picks the response format among offered. The _format query
// parameter wins over the Accept header. Media types are taken in the order
// the client lists them; q-values are only used to skip q=0 entries. An
// absent Accept header selects the first offered format.
func NegotiateFormat(c echo.Context, offered ...Format) (Format, error) {
	if len(offered) == 0 {
		offered = []Format{FormatJSON}
	}

	if format := c.QueryParam("_format"); format != "" {
		switch {
		case isJSONFormat(format) && offers(offered, FormatJSON):
			return FormatJSON, nil
		case isHTMLFormat(format) && offers(offered, FormatHTML):
			return FormatHTML, nil
		}
		return 0, ErrNotAcceptable
	}

	accept := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAccept))
	if accept == "" {
		return offered[0], nil
	}

	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if q, ok := params["q"]; ok && strings.Trim(q, "0.") == "" {
			continue
		}
		switch {
		case mediaType == "*/*":
			return offered[0], nil
		case isHTMLFormat(mediaType) && offers(offered, FormatHTML):
			return FormatHTML, nil
		case isJSONFormat(mediaType) && offers(offered, FormatJSON):
			return FormatJSON, nil
		case mediaType == "application/*" && offers(offered, FormatJSON):
			return FormatJSON, nil
		case mediaType == "text/*" && offers(offered, FormatHTML):
			return FormatHTML, nil
		}
	}
	return 0, ErrNotAcceptable
}

// RequestBodyKind classifies the request Content-Type. An empty
// Content-Type is treated as JSON.
func RequestBodyKind(c echo.Context) (BodyKind, error) {
	ct := strings.TrimSpace(c.Request().Header.Get(echo.HeaderContentType))
	if ct == "" {
		return BodyJSON, nil
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return 0, ErrUnsupportedMediaType
	}
	switch {
	case isJSONFormat(mediaType):
		return BodyJSON, nil
	case mediaType == echo.MIMEApplicationForm, mediaType == echo.MIMEMultipartForm:
		return BodyForm, nil
	}
	return 0, ErrUnsupportedMediaType
}

func offers(offered []Format, f Format) bool {
	for _, o := range offered {
		if o == f {
			return true
		}
	}
	return false
}

// normalizeFormat normalises a format string by lowercasing, trimming
// whitespace, and restoring the "+" that HTTP query-string decoding may have
// converted to a space (e.g. "application/fhir json" -> "application/fhir+json").
func normalizeFormat(raw string) string {
	f := strings.TrimSpace(strings.ToLower(raw))
	f = strings.ReplaceAll(f, "fhir json", "fhir+json")
	return f
}

// isJSONFormat returns true if the format string represents a JSON content type.
func isJSONFormat(format string) bool {
	switch normalizeFormat(format) {
	case "json", "application/json", "application/fhir+json", "text/json":
		return true
	}
	return false
}

func isHTMLFormat(format string) bool {
	switch normalizeFormat(format) {
	case "html", "text/html", "application/xhtml+xml":
		return true
	}
	return false
}
