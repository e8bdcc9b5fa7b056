package patient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/platform/blobstore"
)

// BackupPrefix is the key prefix of every snapshot object.
const BackupPrefix = "patients/"

// Backup writes whole-directory snapshots to a blob store and reads them back.
type Backup struct {
	repo   Repository
	store  blobstore.Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewBackup(repo Repository, store blobstore.Store, logger zerolog.Logger) *Backup {
	return &Backup{repo: repo, store: store, logger: logger, now: time.Now}
}

// RestoreResult counts what Restore did with each snapshot entry.
type RestoreResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Invalid int `json:"invalid"`
}

// Snapshot uploads the current directory in the same layout as the data file.
func (b *Backup) Snapshot(ctx context.Context) (*blobstore.Info, error) {
	dir, err := b.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	raw, err := json.Marshal(dir)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	pretty, err := indent(raw)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s%s-%s.json", BackupPrefix, b.now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	info, err := b.store.Put(ctx, key, bytes.NewReader(pretty), "application/json")
	if err != nil {
		return nil, fmt.Errorf("upload snapshot: %w", err)
	}
	b.logger.Info().Str("key", info.Key).Int("patients", len(dir)).Int64("bytes", info.Size).Msg("snapshot uploaded")
	return info, nil
}

// List returns the stored snapshots, oldest first.
func (b *Backup) List(ctx context.Context) ([]blobstore.Info, error) {
	return b.store.List(ctx, BackupPrefix)
}

// Restore creates every snapshot entry whose id is not already present.
// Existing records are left untouched and entries that fail validation are
// counted as invalid.
func (b *Backup) Restore(ctx context.Context, key string) (*RestoreResult, error) {
	rc, _, err := b.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download snapshot: %w", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var dir Directory
	if err := json.Unmarshal(raw, &dir); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}

	res := &RestoreResult{}
	for _, e := range dir {
		if err := e.Patient.Validate(); err != nil {
			b.logger.Warn().Err(err).Str("id", e.ID).Msg("skipping invalid snapshot entry")
			res.Invalid++
			continue
		}
		p := e.Patient
		switch err := b.repo.Create(ctx, e.ID, &p); {
		case err == nil:
			res.Created++
		case errors.Is(err, ErrConflict):
			res.Skipped++
		default:
			return res, fmt.Errorf("restore %s: %w", e.ID, err)
		}
	}
	return res, nil
}

// Delete removes one snapshot. Keys outside BackupPrefix are refused.
func (b *Backup) Delete(ctx context.Context, key string) error {
	if !strings.HasPrefix(key, BackupPrefix) {
		return fmt.Errorf("%w: %q is not a snapshot key", blobstore.ErrInvalidKey, key)
	}
	if err := b.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	b.logger.Info().Str("key", key).Msg("snapshot deleted")
	return nil
}
