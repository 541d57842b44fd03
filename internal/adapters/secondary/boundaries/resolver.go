package boundaries

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/afero"

	"spatialization-module/internal/adapters/secondary/geojson"
	"spatialization-module/internal/adapters/secondary/postgis"
	"spatialization-module/internal/adapters/secondary/shapefile"
	"spatialization-module/internal/core/domain"
	output "spatialization-module/internal/core/ports/output"
)

const (
	KindShapefile = "shapefile"
	KindGeoJSON   = "geojson"
	KindPostGIS   = "postgis"
)

// Resolver picks a boundary source by BoundarySpec.Kind, or by file extension
// when the kind is empty. pool may be nil when no database is configured.
type Resolver struct {
	fs   afero.Fs
	pool *pgxpool.Pool
}

func NewResolver(fs afero.Fs, pool *pgxpool.Pool) *Resolver {
	return &Resolver{fs: fs, pool: pool}
}

var _ output.BoundaryResolver = (*Resolver)(nil)

func (r *Resolver) Resolve(spec domain.BoundarySpec) (output.BoundarySource, error) {
	kind := strings.ToLower(spec.Kind)
	if kind == "" {
		kind = kindForPath(spec.Path)
	}

	switch kind {
	case KindShapefile:
		return shapefile.NewSource(r.fs, spec), nil
	case KindGeoJSON:
		return geojson.NewSource(r.fs, spec), nil
	case KindPostGIS:
		if r.pool == nil {
			return nil, fmt.Errorf("postgis requested but no database is configured: %w", domain.ErrUnsupportedBoundarySource)
		}
		return postgis.NewBoundarySource(r.pool, spec), nil
	}
	return nil, fmt.Errorf("%q: %w", spec.Kind, domain.ErrUnsupportedBoundarySource)
}

func kindForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return KindShapefile
	case ".geojson", ".json":
		return KindGeoJSON
	}
	return ""
}

// CachingResolver loads each distinct spec once and hands out the same
// read-only set afterwards. Loads of different specs run in parallel; a failed
// load is not cached.
type CachingResolver struct {
	next output.BoundaryResolver

	mu      sync.Mutex
	entries map[domain.BoundarySpec]*cacheEntry
}

type cacheEntry struct {
	mu  sync.Mutex
	set *domain.BoundarySet
}

func NewCachingResolver(next output.BoundaryResolver) *CachingResolver {
	return &CachingResolver{next: next, entries: make(map[domain.BoundarySpec]*cacheEntry)}
}

func (c *CachingResolver) Resolve(spec domain.BoundarySpec) (output.BoundarySource, error) {
	src, err := c.next.Resolve(spec)
	if err != nil {
		return nil, err
	}
	return &cachedSource{entry: c.entry(spec), next: src}, nil
}

func (c *CachingResolver) entry(spec domain.BoundarySpec) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[spec]
	if !ok {
		e = &cacheEntry{}
		c.entries[spec] = e
	}
	return e
}

type cachedSource struct {
	entry *cacheEntry
	next  output.BoundarySource
}

// Load holds only this spec's entry, so concurrent callers of the same spec
// wait for a single decode.
func (s *cachedSource) Load(ctx context.Context) (*domain.BoundarySet, error) {
	s.entry.mu.Lock()
	defer s.entry.mu.Unlock()

	if s.entry.set != nil {
		return s.entry.set, nil
	}
	set, err := s.next.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.entry.set = set
	return set, nil
}
