package patient

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func checkConcurrentCreates(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	const n = 50

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("P%03d", i)
			if err := repo.Create(ctx, id, samplePatient(id, 1.7, 65)); err != nil {
				errs <- fmt.Errorf("create %s: %w", id, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	dir, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(dir) != n {
		t.Errorf("expected %d records, got %d", n, len(dir))
	}
}

func checkConcurrentUpdates(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	if err := repo.Create(ctx, "P001", samplePatient("Ananya", 1.7, 65)); err != nil {
		t.Fatalf("create: %v", err)
	}

	const increments = 20
	var wg sync.WaitGroup
	errs := make(chan error, increments+2)
	update := func(fn UpdateFunc) {
		defer wg.Done()
		if _, err := repo.Update(ctx, "P001", fn); err != nil {
			errs <- err
		}
	}

	wg.Add(increments + 2)
	for i := 0; i < increments; i++ {
		go update(func(p Patient) (Patient, error) {
			p.Age++
			return p, nil
		})
	}
	go update(func(p Patient) (Patient, error) {
		p.City = "Delhi"
		return p, nil
	})
	go update(func(p Patient) (Patient, error) {
		p.Weight = 80
		return p, nil
	})
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("update: %v", err)
	}

	p, err := repo.Get(ctx, "P001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Age != 30+increments {
		t.Errorf("expected age %d, got %d", 30+increments, p.Age)
	}
	if p.City != "Delhi" || p.Weight != 80 || p.Name != "Ananya" {
		t.Errorf("lost a field update: %+v", p)
	}
	if p.BMI != 27.68 {
		t.Errorf("expected bmi derived from final weight, got %v", p.BMI)
	}
}

func TestFileRepository_ConcurrentCreates(t *testing.T) {
	repo, _ := newTestFileRepo(t)
	checkConcurrentCreates(t, repo)
}

func TestFileRepository_ConcurrentUpdates(t *testing.T) {
	repo, _ := newTestFileRepo(t)
	checkConcurrentUpdates(t, repo)
}

func TestSQLRepository_ConcurrentCreates(t *testing.T) {
	checkConcurrentCreates(t, newTestSQLiteRepo(t))
}

func TestSQLRepository_ConcurrentUpdates(t *testing.T) {
	checkConcurrentUpdates(t, newTestSQLiteRepo(t))
}
