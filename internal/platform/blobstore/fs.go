package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const metaSuffix = ".meta"

// FSStore keeps each object as a file under root with a JSON sidecar
// (<key>.meta) holding its Info.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		root = "backups"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) paths(key string) (string, string, string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", "", "", err
	}
	if strings.HasSuffix(key, metaSuffix) {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	data := filepath.Join(s.root, filepath.FromSlash(key))
	return key, data, data + metaSuffix, nil
}

func (s *FSStore) Put(_ context.Context, key string, r io.Reader, contentType string) (*Info, error) {
	key, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, key)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}

	info := Info{
		Key:         key,
		Size:        size,
		ContentType: contentType,
		SHA256:      hex.EncodeToString(h.Sum(nil)),
		CreatedAt:   time.Now().UTC(),
	}
	meta, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
		return nil, fmt.Errorf("write blob metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		os.Remove(metaPath)
		return nil, fmt.Errorf("commit blob: %w", err)
	}
	return &info, nil
}

func (s *FSStore) Get(_ context.Context, key string) (io.ReadCloser, *Info, error) {
	key, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, nil, err
	}
	info, err := readMeta(metaPath, key)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

func readMeta(metaPath, key string) (*Info, error) {
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("read blob metadata for %s: %w", key, err)
	}
	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode blob metadata for %s: %w", key, err)
	}
	return &info, nil
}

func (s *FSStore) List(_ context.Context, prefix string) ([]Info, error) {
	var out []Info
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(p, metaSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		if _, err := os.Stat(strings.TrimSuffix(p, metaSuffix)); err != nil {
			return nil
		}
		info, err := readMeta(p, key)
		if err != nil {
			return err
		}
		out = append(out, *info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	key, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return err
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
