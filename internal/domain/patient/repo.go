package patient

import (
	"context"

	"github.com/dwh/dwhfhir/internal/platform/fhir"
)

type Repository interface {
	// Create inserts r and sets its ID.
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id int64) (*Record, error)
	GetByIPP(ctx context.Context, ipp string) (*Record, error)
	Update(ctx context.Context, r *Record) error
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Record, int, error)
}

// NameFilter is a string search on one name column.
type NameFilter struct {
	Value    string
	Modifier fhir.SearchModifier
}

// SearchParams narrows a patient listing. Zero values match everything.
type SearchParams struct {
	IPP    string
	Family NameFilter
	Given  NameFilter
	Maiden NameFilter
}
