package shapefile

import (
	"context"
	"fmt"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"spatialization-module/internal/core/domain"
)

// Source loads an ESRI shapefile. The decoder reads from the OS filesystem;
// fs is used for the .prj sidecar only.
type Source struct {
	fs   afero.Fs
	spec domain.BoundarySpec
}

func NewSource(fs afero.Fs, spec domain.BoundarySpec) *Source {
	return &Source{fs: fs, spec: spec}
}

func (s *Source) Load(ctx context.Context) (*domain.BoundarySet, error) {
	d, err := shp.NewDecoder(s.spec.Path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", s.spec.Path, err)
	}
	defer d.Close()

	crs := s.spec.CRS
	if crs == "" {
		crs = s.readPrj()
	}

	set := &domain.BoundarySet{CRS: crs}
	columns := []string{s.spec.SubregionColumn}
	if s.spec.ParentColumn != "" && s.spec.ParentColumn != s.spec.SubregionColumn {
		columns = append(columns, s.spec.ParentColumn)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, fields, more := d.DecodeRowFields(columns...)
		if !more {
			break
		}
		attrs := make(map[string]string, len(fields))
		for k, v := range fields {
			attrs[k] = strings.TrimSpace(v)
		}
		// non-polygonal rows keep a nil geometry and fail downstream
		poly, _ := g.(geom.Polygonal)
		set.Records = append(set.Records, domain.BoundaryRecord{Geometry: poly, Attributes: attrs})
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("decode shapefile %s: %w", s.spec.Path, err)
	}

	log.WithFields(log.Fields{
		"path":    s.spec.Path,
		"records": len(set.Records),
		"crs":     crsLabel(set.CRS),
	}).Debug("Shapefile loaded")
	return set, nil
}

// readPrj returns the WKT of the .prj sidecar, or "" when there is none.
func (s *Source) readPrj() string {
	prj := strings.TrimSuffix(s.spec.Path, ".shp") + ".prj"
	b, err := afero.ReadFile(s.fs, prj)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func crsLabel(crs string) string {
	if len(crs) > 40 {
		return crs[:40] + "..."
	}
	return crs
}
