package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dwh/dwhfhir/internal/platform/db"
)

// ippConstraint is the unique constraint on dwh_patient.ipp.
const ippConstraint = "dwh_patient_ipp_key"

type Service struct {
	patients Repository
}

func NewService(patients Repository) *Service {
	return &Service{patients: patients}
}

// Create inserts r. When conditional is set (If-None-Exist), an existing
// patient with the same ipp is reported before attempting the insert; the
// unique index still decides when two creates race.
func (s *Service) Create(ctx context.Context, r *Record, conditional bool) error {
	if conditional {
		_, err := s.patients.GetByIPP(ctx, r.IPP)
		switch {
		case err == nil:
			return &ConflictError{IPP: r.IPP, Conditional: true}
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("lookup by ipp: %w", err)
		}
	}

	r.UpdateDate = stamp()
	if err := s.patients.Create(ctx, r); err != nil {
		if db.IsUniqueViolation(err, ippConstraint) {
			return &ConflictError{IPP: r.IPP, Conditional: conditional}
		}
		return err
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Record, error) {
	return s.patients.GetByID(ctx, id)
}

// Update replaces every column of the record r.ID.
func (s *Service) Update(ctx context.Context, r *Record) error {
	r.UpdateDate = stamp()
	if err := s.patients.Update(ctx, r); err != nil {
		if db.IsUniqueViolation(err, ippConstraint) {
			return &ConflictError{IPP: r.IPP}
		}
		return err
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, params SearchParams, limit, offset int) ([]*Record, int, error) {
	return s.patients.Search(ctx, params, limit, offset)
}

func stamp() *time.Time {
	t := now().UTC()
	return &t
}
