package patient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dwh/dwhfhir/internal/platform/fhir"
	"github.com/dwh/dwhfhir/pkg/pagination"
)

// WebHandler serves the HTML pages under /patient. Requests that negotiate
// JSON on the same paths are handed to the API handler.
type WebHandler struct {
	api      *Handler
	svc      *Service
	pageSize int
	logger   zerolog.Logger
}

func NewWebHandler(api *Handler, pageSize int, logger zerolog.Logger) *WebHandler {
	return &WebHandler{api: api, svc: api.svc, pageSize: pageSize, logger: logger}
}

func (w *WebHandler) RegisterRoutes(g *echo.Group) {
	g.Use(fhir.PreferHandlingMiddleware())
	g.GET("/", w.List)
	g.POST("/", w.Create)
	g.GET("/new/", w.New)
	g.GET("/:id/", w.Detail)
	g.POST("/:id/", w.Update)
	g.PUT("/:id/", w.api.Update, w.api.RequireFormat(fhir.FormatJSON))
	g.DELETE("/:id/", w.api.Delete, w.api.RequireFormat(fhir.FormatJSON))
	g.GET("/:id/edit/", w.Edit)
	g.POST("/:id/edit/", w.Update)
	g.GET("/:id/delete/", w.ConfirmDelete)
	g.POST("/:id/delete/", w.Delete)
}

type listPage struct {
	Records  []*Record
	Page     pagination.Page
	ShowForm bool
	Form     formPage
}

type detailPage struct {
	Record   *Record
	Resource string
}

type formPage struct {
	Title  string
	Action string
	Cancel string
	Fields []formField
	// Errors not tied to a form field.
	Errors []string
}

type formField struct {
	Name    string
	Label   string
	Type    string
	Value   string
	Error   string
	Options []formOption
}

type formOption struct {
	Value, Label string
}

// sexOptions are the codes a record can hold. Anything else is stored as
// O, so the form never offers it.
var sexOptions = []formOption{
	{SexMale, "Homme"},
	{SexFemale, "Femme"},
	{SexOther, "Autre"},
}

// formFields lists the inputs of the create and edit forms, in order.
var formFields = []formField{
	{Name: "ipp", Label: "IPP", Type: "text"},
	{Name: "last_name", Label: "Nom", Type: "text"},
	{Name: "first_name", Label: "Prénom", Type: "text"},
	{Name: "maiden_name", Label: "Nom de naissance", Type: "text"},
	{Name: "sex", Label: "Sexe", Type: "select", Options: sexOptions},
	{Name: "birth_date", Label: "Date de naissance", Type: "date"},
	{Name: "phone_number", Label: "Téléphone", Type: "tel"},
	{Name: "residence_address", Label: "Adresse", Type: "text"},
	{Name: "residence_city", Label: "Ville", Type: "text"},
	{Name: "residence_zip_code", Label: "Code postal", Type: "text"},
	{Name: "residence_country", Label: "Pays", Type: "text"},
	{Name: "residence_latitude", Label: "Latitude", Type: "text"},
	{Name: "residence_longitude", Label: "Longitude", Type: "text"},
	{Name: "birth_city", Label: "Ville de naissance", Type: "text"},
	{Name: "birth_zip_code", Label: "Code postal de naissance", Type: "text"},
	{Name: "birth_country", Label: "Pays de naissance", Type: "text"},
	{Name: "birth_latitude", Label: "Latitude de naissance", Type: "text"},
	{Name: "birth_longitude", Label: "Longitude de naissance", Type: "text"},
	{Name: "death_date", Label: "Date de décès", Type: "datetime-local"},
	{Name: "death_code", Label: "Cause du décès (code)", Type: "text"},
}

// fieldAliases maps mapper error keys onto form inputs.
var fieldAliases = map[string]string{
	"identifier": "ipp",
}

func (w *WebHandler) List(c echo.Context) error {
	format, err := fhir.NegotiateFormat(c, fhir.FormatJSON, fhir.FormatHTML)
	if err != nil {
		return w.api.respondError(c, err)
	}
	if format == fhir.FormatJSON {
		return w.api.List(c)
	}

	ctx := c.Request().Context()
	page := pagination.PageFromContext(c, w.pageSize)
	records, total, err := w.svc.List(ctx, SearchParams{}, page.Size, page.Offset())
	if err != nil {
		return w.fail(c, err)
	}
	if clamped := page.Clamp(total); clamped.Number != page.Number {
		records, total, err = w.svc.List(ctx, SearchParams{}, clamped.Size, clamped.Offset())
		if err != nil {
			return w.fail(c, err)
		}
	}

	data := listPage{
		Records:  records,
		Page:     page.Clamp(total),
		ShowForm: c.QueryParam("new") == "true",
	}
	if data.ShowForm {
		data.Form = newForm(url.Values{}, nil)
	}
	return c.Render(http.StatusOK, "list", data)
}

func (w *WebHandler) New(c echo.Context) error {
	return c.Render(http.StatusOK, "form", newForm(url.Values{}, nil))
}

func (w *WebHandler) Create(c echo.Context) error {
	kind, err := fhir.RequestBodyKind(c)
	if err != nil {
		return w.api.respondError(c, err)
	}
	if kind == fhir.BodyJSON {
		return w.api.Create(c)
	}
	format, err := fhir.NegotiateFormat(c, fhir.FormatHTML, fhir.FormatJSON)
	if err != nil {
		return w.api.respondError(c, err)
	}
	if format == fhir.FormatJSON {
		return w.api.Create(c)
	}

	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed form data")
	}
	r, err := FromFHIR(FormToResource(form), 0)
	if err == nil {
		err = w.svc.Create(c.Request().Context(), r, false)
	}
	if err != nil {
		if verr := formError(err); verr != nil {
			return c.Render(http.StatusBadRequest, "form", newForm(form, verr))
		}
		return w.fail(c, err)
	}
	return c.Redirect(http.StatusFound, recordPath(r.ID))
}

func (w *WebHandler) Detail(c echo.Context) error {
	format, err := fhir.NegotiateFormat(c, fhir.FormatJSON, fhir.FormatHTML)
	if err != nil {
		return w.api.respondError(c, err)
	}
	if format == fhir.FormatJSON {
		return w.api.Get(c)
	}

	r, err := w.record(c)
	if err != nil {
		return w.fail(c, err)
	}
	resource, err := json.MarshalIndent(ToFHIR(r), "", "  ")
	if err != nil {
		return w.fail(c, err)
	}
	return c.Render(http.StatusOK, "detail", detailPage{Record: r, Resource: string(resource)})
}

func (w *WebHandler) Edit(c echo.Context) error {
	r, err := w.record(c)
	if err != nil {
		return w.fail(c, err)
	}
	return c.Render(http.StatusOK, "form", editForm(r.ID, recordValues(r), nil))
}

func (w *WebHandler) Update(c echo.Context) error {
	if kind, err := fhir.RequestBodyKind(c); err != nil || kind == fhir.BodyJSON {
		return w.api.Update(c)
	}

	id, err := pathID(c)
	if err != nil {
		return w.fail(c, err)
	}
	if _, err := w.svc.Get(c.Request().Context(), id); err != nil {
		return w.fail(c, err)
	}

	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed form data")
	}
	r, err := FromFHIR(FormToResource(form), id)
	if err == nil {
		err = w.svc.Update(c.Request().Context(), r)
	}
	if err != nil {
		if verr := formError(err); verr != nil {
			return c.Render(http.StatusBadRequest, "form", editForm(id, form, verr))
		}
		return w.fail(c, err)
	}
	return c.Redirect(http.StatusFound, recordPath(id))
}

func (w *WebHandler) ConfirmDelete(c echo.Context) error {
	r, err := w.record(c)
	if err != nil {
		return w.fail(c, err)
	}
	return c.Render(http.StatusOK, "delete", r)
}

func (w *WebHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return w.fail(c, err)
	}
	if err := w.svc.Delete(c.Request().Context(), id); err != nil {
		return w.fail(c, err)
	}
	return c.Redirect(http.StatusFound, "/patient/")
}

func (w *WebHandler) record(c echo.Context) (*Record, error) {
	id, err := pathID(c)
	if err != nil {
		return nil, err
	}
	return w.svc.Get(c.Request().Context(), id)
}

// fail turns an error into an HTML error response through echo's error
// handler.
func (w *WebHandler) fail(c echo.Context, err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Patient introuvable")
	}
	w.logger.Error().Err(err).
		Interface("request_id", c.Get("request_id")).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Msg("patient page failed")
	return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
}

// formError returns the field errors to show on the form, or nil when err
// is not caused by the submitted values.
func formError(err error) *ValidationError {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return &ValidationError{Fields: map[string]string{
			"ipp": fmt.Sprintf("Un patient avec l'IPP %q existe déjà.", conflict.IPP),
		}}
	}
	return nil
}

func newForm(values url.Values, verr *ValidationError) formPage {
	return buildForm("Nouveau patient", "/patient/", "/patient/", values, verr)
}

func editForm(id int64, values url.Values, verr *ValidationError) formPage {
	path := recordPath(id)
	return buildForm("Modifier le patient", path+"edit/", path, values, verr)
}

func hasOption(options []formOption, value string) bool {
	for _, o := range options {
		if o.Value == value {
			return true
		}
	}
	return false
}

func buildForm(title, action, cancel string, values url.Values, verr *ValidationError) formPage {
	p := formPage{Title: title, Action: action, Cancel: cancel}

	errs := map[string]string{}
	if verr != nil {
		for field, msg := range verr.Fields {
			if alias, ok := fieldAliases[field]; ok {
				field = alias
			}
			errs[field] = msg
		}
	}

	p.Fields = make([]formField, len(formFields))
	for i, f := range formFields {
		f.Value = values.Get(f.Name)
		if f.Name == "death_date" && f.Value == "" {
			f.Value = values.Get("deceasedDateTime")
		}
		if f.Name == "sex" && !hasOption(f.Options, f.Value) {
			f.Value = SexOther
		}
		f.Error = errs[f.Name]
		delete(errs, f.Name)
		p.Fields[i] = f
	}
	for field, msg := range errs {
		p.Errors = append(p.Errors, field+" : "+msg)
	}
	sort.Strings(p.Errors)
	return p
}

// recordValues fills the form inputs from a stored record.
func recordValues(r *Record) url.Values {
	v := url.Values{}
	set := func(key string, s *string) {
		if s != nil {
			v.Set(key, *s)
		}
	}
	v.Set("ipp", r.IPP)
	set("last_name", r.LastName)
	set("first_name", r.FirstName)
	set("maiden_name", r.MaidenName)
	set("sex", r.Sex)
	if r.BirthDate != nil {
		v.Set("birth_date", r.BirthDate.Format(time.DateOnly))
	}
	set("phone_number", r.PhoneNumber)
	set("residence_address", r.ResidenceAddress)
	set("residence_city", r.ResidenceCity)
	set("residence_zip_code", r.ResidenceZipCode)
	set("residence_country", r.ResidenceCountry)
	if r.ResidenceLatitude != nil {
		v.Set("residence_latitude", r.ResidenceLatitude.String())
	}
	if r.ResidenceLongitude != nil {
		v.Set("residence_longitude", r.ResidenceLongitude.String())
	}
	set("birth_city", r.BirthCity)
	set("birth_zip_code", r.BirthZipCode)
	set("birth_country", r.BirthCountry)
	if r.BirthLatitude != nil {
		v.Set("birth_latitude", floatNumber(*r.BirthLatitude).String())
	}
	if r.BirthLongitude != nil {
		v.Set("birth_longitude", floatNumber(*r.BirthLongitude).String())
	}
	if r.DeathDate != nil {
		v.Set("death_date", r.DeathDate.UTC().Format("2006-01-02T15:04"))
	}
	set("death_code", r.DeathCode)
	return v
}

func recordPath(id int64) string {
	return "/patient/" + strconv.FormatInt(id, 10) + "/"
}
