package patient

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

func newTestSQLiteRepo(t *testing.T) *SQLRepository {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "patients.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repo, err := NewSQLRepository(context.Background(), db, SQLiteDialect)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return repo
}

func TestSQLRepository_SQLiteCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLiteRepo(t)

	for _, id := range []string{"P003", "P001", "P002"} {
		if err := repo.Create(ctx, id, samplePatient(id, 1.7, 65)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := repo.Create(ctx, "P001", samplePatient("dup", 1.7, 65)); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	dir, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i, want := range []string{"P003", "P001", "P002"} {
		if dir[i].ID != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, dir[i].ID)
		}
	}

	p, err := repo.Update(ctx, "P001", func(p Patient) (Patient, error) {
		p.Height = 1.5
		return p, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.BMI != 28.89 || p.Verdict != VerdictOverweight {
		t.Errorf("expected 28.89 Overweight, got %v %s", p.BMI, p.Verdict)
	}

	got, err := repo.Get(ctx, "P001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Height != 1.5 || got.BMI != 28.89 {
		t.Errorf("update not persisted: %+v", got)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, "P003"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, "P003"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMySQLDialect_IsDuplicate(t *testing.T) {
	if !MySQLDialect.IsDuplicate(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}) {
		t.Error("expected 1062 to be a duplicate")
	}
	if MySQLDialect.IsDuplicate(&mysql.MySQLError{Number: 1146}) {
		t.Error("expected 1146 not to be a duplicate")
	}
	if MySQLDialect.IsDuplicate(errors.New("boom")) {
		t.Error("expected plain error not to be a duplicate")
	}
}
