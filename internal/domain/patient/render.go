package patient

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages are rendered inside templates/layout.html.
var pages = []string{"list", "detail", "form", "delete"}

// Renderer renders the patient pages. It implements echo.Renderer.
type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

var templateFuncs = template.FuncMap{
	"str":      deref,
	"date":     displayDate,
	"datetime": displayDateTime,
	"gender":   displayGender,
	"decimal": func(d *decimal.Decimal) string {
		if d == nil {
			return ""
		}
		return d.String()
	},
	"float": func(f *float64) string {
		if f == nil {
			return ""
		}
		return floatNumber(*f).String()
	},
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func displayDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02/01/2006")
}

func displayDateTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02/01/2006 à 15:04")
}

func displayGender(s *string) string {
	switch deref(s) {
	case SexMale:
		return "Homme"
	case SexFemale:
		return "Femme"
	case SexOther:
		return "Autre"
	}
	return "Inconnu"
}
