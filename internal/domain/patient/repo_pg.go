package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

// NewPostgresRepo stores patients in the patients table created by
// migrations/001_patients.sql.
func NewPostgresRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `name, city, age, gender, height, weight`

func scanPatient(row pgx.Row) (Patient, error) {
	var p Patient
	var gender string
	if err := row.Scan(&p.Name, &p.City, &p.Age, &gender, &p.Height, &p.Weight); err != nil {
		return Patient{}, err
	}
	p.Gender = Gender(gender)
	return p.Derive(), nil
}

func (r *patientRepoPG) List(ctx context.Context) (Directory, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, `+patientCols+` FROM patients ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	dir := Directory{}
	for rows.Next() {
		var id string
		var p Patient
		var gender string
		if err := rows.Scan(&id, &p.Name, &p.City, &p.Age, &gender, &p.Height, &p.Weight); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		p.Gender = Gender(gender)
		dir = append(dir, Entry{ID: id, Patient: p.Derive()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return dir, nil
}

func (r *patientRepoPG) Get(ctx context.Context, id string) (*Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, id string, p *Patient) error {
	d := p.Derive()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, name, city, age, gender, height, weight, bmi, verdict)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, d.Name, d.City, d.Age, string(d.Gender), d.Height, d.Weight, d.BMI, string(d.Verdict),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert patient %s: %w", id, err)
	}
	return nil
}

func (r *patientRepoPG) Update(ctx context.Context, id string, fn UpdateFunc) (*Patient, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanPatient(tx.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock patient %s: %w", id, err)
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	next = next.Derive()

	if _, err := tx.Exec(ctx, `
		UPDATE patients SET name = $2, city = $3, age = $4, gender = $5,
			height = $6, weight = $7, bmi = $8, verdict = $9, updated_at = NOW()
		WHERE id = $1`,
		id, next.Name, next.City, next.Age, string(next.Gender), next.Height, next.Weight, next.BMI, string(next.Verdict),
	); err != nil {
		return nil, fmt.Errorf("update patient %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &next, nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
