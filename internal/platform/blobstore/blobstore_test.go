package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"fs":     fsStore,
		"s3":     newMockS3Store(t),
	}
}

func TestStore_PutGetListDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			info, err := s.Put(ctx, "patients/2026/a.json", strings.NewReader(`{"P001":{}}`), "application/json")
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if info.Key != "patients/2026/a.json" || info.Size != 11 {
				t.Errorf("unexpected info: %+v", info)
			}
			if _, err := s.Put(ctx, "patients/2026/b.json", strings.NewReader("{}"), "application/json"); err != nil {
				t.Fatalf("Put b: %v", err)
			}
			if _, err := s.Put(ctx, "other/c.json", strings.NewReader("{}"), ""); err != nil {
				t.Fatalf("Put c: %v", err)
			}

			rc, got, err := s.Get(ctx, "patients/2026/a.json")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			body, _ := io.ReadAll(rc)
			rc.Close()
			if string(body) != `{"P001":{}}` || got.ContentType != "application/json" {
				t.Errorf("unexpected content %q / %+v", body, got)
			}

			list, err := s.List(ctx, "patients/")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 2 || list[0].Key != "patients/2026/a.json" || list[1].Key != "patients/2026/b.json" {
				t.Errorf("unexpected list: %+v", list)
			}

			if err := s.Delete(ctx, "patients/2026/a.json"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, _, err := s.Get(ctx, "patients/2026/a.json"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
			if err := s.Delete(ctx, "patients/2026/a.json"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound on second delete, got %v", err)
			}
		})
	}
}

func TestStore_PutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Put(ctx, "k.json", strings.NewReader("one"), ""); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if _, err := s.Put(ctx, "k.json", strings.NewReader("two"), ""); !errors.Is(err, ErrExists) {
				t.Errorf("expected ErrExists, got %v", err)
			}
		})
	}
}

func TestCleanKey(t *testing.T) {
	for _, bad := range []string{"", "  ", "/abs", "../up", "a/../../up", "..", `a\b`} {
		if _, err := cleanKey(bad); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("cleanKey(%q): expected ErrInvalidKey, got %v", bad, err)
		}
	}
	if got, err := cleanKey("a//b/./c.json"); err != nil || got != "a/b/c.json" {
		t.Errorf("cleanKey normalisation: got %q %v", got, err)
	}
}

func TestFSStore_LayoutAndChecksum(t *testing.T) {
	root := t.TempDir()
	s, _ := NewFSStore(root)
	info, err := s.Put(context.Background(), "x/y.json", strings.NewReader("abc"), "application/json")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.SHA256 != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("unexpected sha256 %s", info.SHA256)
	}
	if _, err := os.Stat(filepath.Join(root, "x", "y.json.meta")); err != nil {
		t.Errorf("expected metadata sidecar: %v", err)
	}
	if _, err := s.Put(context.Background(), "x/z.meta", strings.NewReader("abc"), ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected sidecar suffix to be rejected, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	if s, err := Open(ctx, Config{Driver: DriverMemory}); err != nil || s == nil {
		t.Errorf("memory: %v", err)
	}
	if _, err := Open(ctx, Config{Driver: DriverFS, Dir: t.TempDir()}); err != nil {
		t.Errorf("fs: %v", err)
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Error("expected error for s3 without bucket")
	}
	if _, err := Open(ctx, Config{Driver: "ftp"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
