package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dwh/dwhfhir/internal/platform/fhir"
)

type repoPG struct {
	pool querier
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const patientCols = `id, ipp, last_name, first_name, maiden_name, sex, birth_date, phone_number,
	residence_address, residence_city, residence_zip_code, residence_country,
	residence_latitude, residence_longitude,
	death_code, death_date,
	birth_city, birth_zip_code, birth_country, birth_latitude, birth_longitude,
	update_date`

func (p *repoPG) Create(ctx context.Context, r *Record) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO dwh_patient (
			ipp, last_name, first_name, maiden_name, sex, birth_date, phone_number,
			residence_address, residence_city, residence_zip_code, residence_country,
			residence_latitude, residence_longitude,
			death_code, death_date,
			birth_city, birth_zip_code, birth_country, birth_latitude, birth_longitude,
			update_date
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,
			$8,$9,$10,$11,
			$12,$13,
			$14,$15,
			$16,$17,$18,$19,$20,
			$21
		) RETURNING id`,
		r.IPP, r.LastName, r.FirstName, r.MaidenName, r.Sex, r.BirthDate, r.PhoneNumber,
		r.ResidenceAddress, r.ResidenceCity, r.ResidenceZipCode, r.ResidenceCountry,
		nullDecimal(r.ResidenceLatitude), nullDecimal(r.ResidenceLongitude),
		r.DeathCode, r.DeathDate,
		r.BirthCity, r.BirthZipCode, r.BirthCountry, r.BirthLatitude, r.BirthLongitude,
		r.UpdateDate,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	return nil
}

func (p *repoPG) GetByID(ctx context.Context, id int64) (*Record, error) {
	return scanRecord(p.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM dwh_patient WHERE id = $1`, id))
}

func (p *repoPG) GetByIPP(ctx context.Context, ipp string) (*Record, error) {
	return scanRecord(p.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM dwh_patient WHERE ipp = $1`, ipp))
}

func (p *repoPG) Update(ctx context.Context, r *Record) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE dwh_patient SET
			ipp=$2, last_name=$3, first_name=$4, maiden_name=$5, sex=$6, birth_date=$7, phone_number=$8,
			residence_address=$9, residence_city=$10, residence_zip_code=$11, residence_country=$12,
			residence_latitude=$13, residence_longitude=$14,
			death_code=$15, death_date=$16,
			birth_city=$17, birth_zip_code=$18, birth_country=$19, birth_latitude=$20, birth_longitude=$21,
			update_date=$22
		WHERE id = $1`,
		r.ID,
		r.IPP, r.LastName, r.FirstName, r.MaidenName, r.Sex, r.BirthDate, r.PhoneNumber,
		r.ResidenceAddress, r.ResidenceCity, r.ResidenceZipCode, r.ResidenceCountry,
		nullDecimal(r.ResidenceLatitude), nullDecimal(r.ResidenceLongitude),
		r.DeathCode, r.DeathDate,
		r.BirthCity, r.BirthZipCode, r.BirthCountry, r.BirthLatitude, r.BirthLongitude,
		r.UpdateDate,
	)
	if err != nil {
		return fmt.Errorf("patient update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM dwh_patient WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *repoPG) Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Record, int, error) {
	qb := searchQuery(params)

	var total int
	if err := p.pool.QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patient count: %w", err)
	}

	rows, err := p.pool.Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("patient search: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("patient search: %w", err)
	}
	return records, total, nil
}

func searchQuery(params SearchParams) *fhir.SearchQuery {
	qb := fhir.NewSearchQuery("dwh_patient", patientCols)
	if params.IPP != "" {
		qb.AddExact("ipp", params.IPP)
	}
	for _, f := range []struct {
		column string
		filter NameFilter
	}{
		{"last_name", params.Family},
		{"first_name", params.Given},
		{"maiden_name", params.Maiden},
	} {
		if f.filter.Value != "" {
			qb.AddString(f.column, f.filter.Value, f.filter.Modifier)
		}
	}
	qb.OrderBy("id")
	return qb
}

// scanRecord reads one row in patientCols order. pgx.Rows satisfies
// pgx.Row, so it serves both single and multi-row queries.
func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	var lat, lng decimal.NullDecimal
	err := row.Scan(
		&r.ID, &r.IPP, &r.LastName, &r.FirstName, &r.MaidenName, &r.Sex, &r.BirthDate, &r.PhoneNumber,
		&r.ResidenceAddress, &r.ResidenceCity, &r.ResidenceZipCode, &r.ResidenceCountry,
		&lat, &lng,
		&r.DeathCode, &r.DeathDate,
		&r.BirthCity, &r.BirthZipCode, &r.BirthCountry, &r.BirthLatitude, &r.BirthLongitude,
		&r.UpdateDate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patient scan: %w", err)
	}
	if lat.Valid {
		r.ResidenceLatitude = &lat.Decimal
	}
	if lng.Valid {
		r.ResidenceLongitude = &lng.Decimal
	}
	return &r, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
