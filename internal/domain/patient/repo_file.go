package patient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// FileRepository keeps the whole directory in a single JSON file. Every call
// reads the file and every mutation rewrites it. The mutex makes each
// read-modify-write atomic within this process.
type FileRepository struct {
	path   string
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewFileRepository opens the file at path, creating an empty directory if
// it does not exist.
func NewFileRepository(path string, logger zerolog.Logger) (*FileRepository, error) {
	r := &FileRepository{path: path, logger: logger}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// load reads the directory. A missing file is created empty. Content that
// cannot be decoded is logged and treated as an empty directory.
func (r *FileRepository) load() (Directory, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := r.save(Directory{}); err != nil {
			return nil, err
		}
		return Directory{}, nil
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("path", r.path).Msg("patient file unreadable, using empty directory")
		return Directory{}, nil
	}

	var dir Directory
	if err := json.Unmarshal(data, &dir); err != nil {
		r.logger.Warn().Err(err).Str("path", r.path).Msg("patient file corrupt, using empty directory")
		return Directory{}, nil
	}
	return dir, nil
}

// save writes to a temp file next to the target and renames it into place.
func (r *FileRepository) save(dir Directory) error {
	raw, err := json.Marshal(dir)
	if err != nil {
		return fmt.Errorf("encode patients: %w", err)
	}
	pretty, err := indent(raw)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".patients-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pretty); err != nil {
		tmp.Close()
		return fmt.Errorf("write patients: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace %s: %w", r.path, err)
	}
	return nil
}

func indent(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("indent patients: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (r *FileRepository) List(_ context.Context) (Directory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *FileRepository) Get(_ context.Context, id string) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dir, err := r.load()
	if err != nil {
		return nil, err
	}
	i := dir.Index(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	p := dir[i].Patient
	return &p, nil
}

func (r *FileRepository) Create(_ context.Context, id string, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dir, err := r.load()
	if err != nil {
		return err
	}
	if dir.Index(id) >= 0 {
		return ErrConflict
	}
	return r.save(append(dir, Entry{ID: id, Patient: p.Derive()}))
}

func (r *FileRepository) Update(_ context.Context, id string, fn UpdateFunc) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dir, err := r.load()
	if err != nil {
		return nil, err
	}
	i := dir.Index(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	next, err := fn(dir[i].Patient)
	if err != nil {
		return nil, err
	}
	next = next.Derive()
	dir[i].Patient = next
	if err := r.save(dir); err != nil {
		return nil, err
	}
	return &next, nil
}

func (r *FileRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dir, err := r.load()
	if err != nil {
		return err
	}
	i := dir.Index(id)
	if i < 0 {
		return ErrNotFound
	}
	return r.save(append(dir[:i], dir[i+1:]...))
}
