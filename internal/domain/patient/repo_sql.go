package patient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Dialect captures the differences between the database/sql backends.
type Dialect struct {
	Name        string
	CreateTable string
	LockSuffix  string
	IsDuplicate func(error) bool
}

var (
	SQLiteDialect = Dialect{
		Name: "sqlite",
		CreateTable: `CREATE TABLE IF NOT EXISTS patients (
			position INTEGER PRIMARY KEY AUTOINCREMENT,
			id       TEXT NOT NULL UNIQUE,
			name     TEXT NOT NULL,
			city     TEXT NOT NULL,
			age      INTEGER NOT NULL,
			gender   TEXT NOT NULL,
			height   REAL NOT NULL,
			weight   REAL NOT NULL,
			bmi      REAL NOT NULL DEFAULT 0,
			verdict  TEXT NOT NULL
		)`,
		IsDuplicate: func(err error) bool {
			return strings.Contains(err.Error(), "UNIQUE constraint failed")
		},
	}

	MySQLDialect = Dialect{
		Name: "mysql",
		CreateTable: `CREATE TABLE IF NOT EXISTS patients (
			position BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			id       VARCHAR(64) NOT NULL UNIQUE,
			name     VARCHAR(255) NOT NULL,
			city     VARCHAR(255) NOT NULL,
			age      INT NOT NULL,
			gender   VARCHAR(16) NOT NULL,
			height   DOUBLE NOT NULL,
			weight   DOUBLE NOT NULL,
			bmi      DOUBLE NOT NULL DEFAULT 0,
			verdict  VARCHAR(16) NOT NULL
		)`,
		LockSuffix: " FOR UPDATE",
		IsDuplicate: func(err error) bool {
			var me *mysql.MySQLError
			return errors.As(err, &me) && me.Number == 1062
		},
	}
)

// SQLRepository stores patients through database/sql. Row order follows the
// auto-increment position column, which preserves insertion order.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLRepository creates the patients table if needed.
func NewSQLRepository(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLRepository, error) {
	if _, err := db.ExecContext(ctx, dialect.CreateTable); err != nil {
		return nil, fmt.Errorf("create %s patients table: %w", dialect.Name, err)
	}
	return &SQLRepository{db: db, dialect: dialect}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLPatient(row rowScanner, extra ...any) (Patient, error) {
	var p Patient
	var gender string
	dest := append(extra, &p.Name, &p.City, &p.Age, &gender, &p.Height, &p.Weight)
	if err := row.Scan(dest...); err != nil {
		return Patient{}, err
	}
	p.Gender = Gender(gender)
	return p.Derive(), nil
}

func (r *SQLRepository) List(ctx context.Context) (Directory, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, `+patientCols+` FROM patients ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	dir := Directory{}
	for rows.Next() {
		var id string
		p, err := scanSQLPatient(rows, &id)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		dir = append(dir, Entry{ID: id, Patient: p})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return dir, nil
}

func (r *SQLRepository) Get(ctx context.Context, id string) (*Patient, error) {
	p, err := scanSQLPatient(r.db.QueryRowContext(ctx, `SELECT `+patientCols+` FROM patients WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return &p, nil
}

func (r *SQLRepository) Create(ctx context.Context, id string, p *Patient) error {
	d := p.Derive()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO patients (id, name, city, age, gender, height, weight, bmi, verdict)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, d.Name, d.City, d.Age, string(d.Gender), d.Height, d.Weight, d.BMI, string(d.Verdict),
	)
	if err != nil && r.dialect.IsDuplicate(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert patient %s: %w", id, err)
	}
	return nil
}

func (r *SQLRepository) Update(ctx context.Context, id string, fn UpdateFunc) (*Patient, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanSQLPatient(tx.QueryRowContext(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = ?`+r.dialect.LockSuffix, id))
	if errors.Is(err, sql.ErrNoRows) {
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

	if _, err := tx.ExecContext(ctx, `
		UPDATE patients SET name = ?, city = ?, age = ?, gender = ?,
			height = ?, weight = ?, bmi = ?, verdict = ?
		WHERE id = ?`,
		next.Name, next.City, next.Age, string(next.Gender), next.Height, next.Weight, next.BMI, string(next.Verdict), id,
	); err != nil {
		return nil, fmt.Errorf("update patient %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &next, nil
}

func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
