package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dwh/dwhfhir/internal/platform/fhir"
	"github.com/dwh/dwhfhir/pkg/pagination"
)

// Handler serves the FHIR JSON API.
type Handler struct {
	svc     *Service
	baseURL string
	logger  zerolog.Logger
}

// NewHandler creates a Handler. baseURL prefixes the Location header and
// may be empty for relative locations.
func NewHandler(svc *Service, baseURL string, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, baseURL: strings.TrimSuffix(baseURL, "/"), logger: logger}
}

// RegisterRoutes mounts the JSON API on each group, e.g. /api/patient and
// /Patient. Paths carry a trailing slash; the server adds it to requests.
func (h *Handler) RegisterRoutes(groups ...*echo.Group) {
	for _, g := range groups {
		g.Use(h.RequireFormat(fhir.FormatJSON), fhir.PreferHandlingMiddleware())
		g.GET("/", h.List)
		g.POST("/", h.Create)
		g.GET("/:id/", h.Get)
		g.PUT("/:id/", h.Update)
		g.DELETE("/:id/", h.Delete)
	}
}

// RequireFormat rejects requests whose Accept header or _format parameter
// allows none of offered.
func (h *Handler) RequireFormat(offered ...fhir.Format) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, err := fhir.NegotiateFormat(c, offered...); err != nil {
				return h.respondError(c, err)
			}
			return next(c)
		}
	}
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := searchParamsFrom(c)

	records, total, err := h.svc.List(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return h.respondError(c, err)
	}

	resources := make([]fhir.Object, len(records))
	for i, r := range records {
		resources[i] = ToFHIR(r)
	}

	header := c.Response().Header()
	header.Set("X-Total-Count", strconv.Itoa(total))
	header.Set("Link", pagination.LinkHeader(pg.FHIRLinks(c.Request().URL.Path, c.QueryParams(), total)))
	return fhirJSON(c, http.StatusOK, resources)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return h.respondError(c, err)
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return fhirJSON(c, http.StatusOK, ToFHIR(r))
}

func (h *Handler) Create(c echo.Context) error {
	doc, err := readResource(c)
	if err != nil {
		return h.respondError(c, err)
	}
	if unknown := strictUnknownElements(c, doc); len(unknown) > 0 {
		return fhirJSON(c, http.StatusBadRequest, fhir.StrictModeOutcome(unknown))
	}

	r, err := FromFHIR(doc, 0)
	if err != nil {
		return h.respondError(c, err)
	}

	cond, conditional := fhir.ConditionalCreateFrom(c)
	if conditional {
		if err := checkCondition(cond, r); err != nil {
			return h.respondError(c, err)
		}
	}

	if err := h.svc.Create(c.Request().Context(), r, conditional); err != nil {
		return h.respondError(c, err)
	}
	return h.respondWrite(c, http.StatusCreated, r)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return h.respondError(c, err)
	}
	doc, err := readResource(c)
	if err != nil {
		return h.respondError(c, err)
	}
	if unknown := strictUnknownElements(c, doc); len(unknown) > 0 {
		return fhirJSON(c, http.StatusBadRequest, fhir.StrictModeOutcome(unknown))
	}

	r, err := FromFHIR(doc, id)
	if err != nil {
		return h.respondError(c, err)
	}
	if err := h.svc.Update(c.Request().Context(), r); err != nil {
		return h.respondError(c, err)
	}
	return h.respondWrite(c, http.StatusOK, r)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return h.respondError(c, err)
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return h.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// respondWrite answers a successful create or update according to the
// Prefer return directive. The default is return=minimal.
func (h *Handler) respondWrite(c echo.Context, status int, r *Record) error {
	c.Response().Header().Set(echo.HeaderLocation, h.location(c, r.ID))

	prefer := fhir.ParsePreferHeader(c.Request().Header.Get("Prefer"))
	switch prefer.ReturnOr(fhir.ReturnMinimal) {
	case fhir.ReturnRepresentation:
		return fhirJSON(c, status, ToFHIR(r))
	case fhir.ReturnOperationOutcome:
		verb := "updated"
		if status == http.StatusCreated {
			verb = "created"
		}
		return fhirJSON(c, status, fhir.SuccessOutcome(fmt.Sprintf("Patient/%d %s", r.ID, verb)))
	}
	return c.NoContent(status)
}

// location is the URL of the record under the collection the request
// addressed.
func (h *Handler) location(c echo.Context, id int64) string {
	return h.baseURL + collectionPath(c) + strconv.FormatInt(id, 10) + "/"
}

// respondError maps service and protocol errors onto OperationOutcome
// responses.
func (h *Handler) respondError(c echo.Context, err error) error {
	var verr *ValidationError
	var conflict *ConflictError

	switch {
	case errors.As(err, &verr):
		return fhirJSON(c, http.StatusBadRequest, fhir.ValidationOutcome(verr.Fields))
	case errors.As(err, &conflict):
		if conflict.Conditional {
			return fhirJSON(c, http.StatusPreconditionFailed, fhir.DuplicateOutcome(conflict.Error()))
		}
		return fhirJSON(c, http.StatusConflict, fhir.ConflictOutcome(conflict.Error()))
	case errors.Is(err, ErrNotFound):
		return fhirJSON(c, http.StatusNotFound, fhir.NotFoundOutcome("Patient", c.Param("id")))
	case errors.Is(err, fhir.ErrUnsupportedMediaType):
		return fhirJSON(c, http.StatusUnsupportedMediaType,
			fhir.NotSupportedOutcome("Content-Type must be JSON or form data"))
	case errors.Is(err, fhir.ErrNotAcceptable):
		return fhirJSON(c, http.StatusNotAcceptable,
			fhir.NotSupportedOutcome("no acceptable representation, use application/fhir+json"))
	case errors.Is(err, context.DeadlineExceeded):
		return fhirJSON(c, http.StatusGatewayTimeout,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeTimeout, "request timed out"))
	}

	h.logger.Error().Err(err).
		Interface("request_id", c.Get("request_id")).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Msg("patient request failed")
	return fhirJSON(c, http.StatusInternalServerError, fhir.InternalErrorOutcome("internal server error"))
}

func fhirJSON(c echo.Context, status int, body any) error {
	c.Response().Header().Set(echo.HeaderContentType, fhir.FHIRContentType)
	return c.JSON(status, body)
}

// readResource decodes the request body as a resource document. Form
// bodies go through FormToResource.
func readResource(c echo.Context) (map[string]any, error) {
	kind, err := fhir.RequestBodyKind(c)
	if err != nil {
		return nil, err
	}

	if kind == fhir.BodyForm {
		form, err := c.FormParams()
		if err != nil {
			return nil, &ValidationError{Fields: map[string]string{"body": "malformed form data"}}
		}
		return FormToResource(form), nil
	}

	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, &ValidationError{Fields: map[string]string{"body": "malformed JSON: " + err.Error()}}
	}
	if doc == nil {
		return nil, &ValidationError{Fields: map[string]string{"body": "expected a JSON object"}}
	}
	return doc, nil
}

// strictUnknownElements returns the unknown top-level elements of doc when
// the client asked for Prefer: handling=strict.
func strictUnknownElements(c echo.Context, doc map[string]any) []string {
	if fhir.GetHandlingPreference(c) != fhir.HandlingStrict {
		return nil
	}
	return fhir.ValidateUnknownElements(doc, fhir.PatientElements)
}

// checkCondition rejects an If-None-Exist identifier criterion that names
// a different patient than the submitted resource. Other criteria are
// ignored; the lookup always uses the resource's ipp.
func checkCondition(cond fhir.ConditionalCreate, r *Record) error {
	system, value, ok := cond.Identifier()
	if !ok {
		return nil
	}
	if system != "" && system != IdentifierSystemIPP {
		return &ValidationError{Fields: map[string]string{
			fhir.HeaderIfNoneExist: fmt.Sprintf("unsupported identifier system %q", system),
		}}
	}
	if value != r.IPP {
		return &ValidationError{Fields: map[string]string{
			fhir.HeaderIfNoneExist: fmt.Sprintf("identifier %q does not match the resource ipp %q", value, r.IPP),
		}}
	}
	return nil
}

// searchParamsFrom reads the lookup parameters. Name parameters accept the
// :exact and :contains modifiers.
func searchParamsFrom(c echo.Context) SearchParams {
	var params SearchParams
	for key, values := range c.QueryParams() {
		if len(values) == 0 || values[0] == "" {
			continue
		}
		name, mod := fhir.ParseParamModifier(key)
		filter := NameFilter{Value: values[0], Modifier: mod}
		switch name {
		case "identifier":
			ident := values[0]
			if _, v, ok := strings.Cut(ident, "|"); ok {
				ident = v
			}
			params.IPP = ident
		case "family":
			params.Family = filter
		case "given":
			params.Given = filter
		case "maiden":
			params.Maiden = filter
		}
	}
	return params
}

// pathID parses the :id path parameter. Ids that cannot exist are reported
// as not found.
func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrNotFound
	}
	return id, nil
}

// collectionPath is the route path up to the id segment, with a trailing
// slash.
func collectionPath(c echo.Context) string {
	path := c.Path()
	if i := strings.Index(path, ":id"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path
}
