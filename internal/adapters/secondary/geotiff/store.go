package geotiff

import (
	"context"
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"spatialization-module/internal/core/domain"
	"spatialization-module/internal/core/ports/output"
)

// Store reads and writes GeoTIFF files on an afero filesystem.
type Store struct {
	fs afero.Fs
}

func NewStore(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

var _ ports.RasterStore = (*Store)(nil)

func (s *Store) Open(ctx context.Context, path string) (ports.RasterDataset, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, domain.ErrIOFailure, err)
	}
	ds, err := NewDataset(f, f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Write encodes into a hidden sibling file and renames it over path, so a
// reader never sees a partial raster at path.
func (s *Store) Write(ctx context.Context, path string, meta domain.RasterMeta, block *domain.RasterBlock) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := afero.TempFile(s.fs, dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w: %w", path, domain.ErrIOFailure, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		if err := s.fs.Remove(tmpName); err != nil {
			log.WithError(err).WithField("file", tmpName).Warn("Failed to remove temp raster")
		}
	}

	if err := Encode(tmp, meta, block); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w: %w", path, domain.ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w: %w", path, domain.ErrIOFailure, err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into %s: %w: %w", path, domain.ErrIOFailure, err)
	}
	return nil
}
