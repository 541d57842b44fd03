package geojson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ctessum/geom"
	gj "github.com/ctessum/geom/encoding/geojson"
	"github.com/spf13/afero"

	"spatialization-module/internal/core/domain"
)

// DefaultCRS applies when a collection does not name one.
const DefaultCRS = "EPSG:4326"

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
	CRS      *struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs,omitempty"`
}

type feature struct {
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// Source loads a GeoJSON FeatureCollection.
type Source struct {
	fs   afero.Fs
	spec domain.BoundarySpec
}

func NewSource(fs afero.Fs, spec domain.BoundarySpec) *Source {
	return &Source{fs: fs, spec: spec}
}

func (s *Source) Load(ctx context.Context) (*domain.BoundarySet, error) {
	b, err := afero.ReadFile(s.fs, s.spec.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.spec.Path, err)
	}
	return Parse(b, s.spec.CRS)
}

// Parse decodes a FeatureCollection. crs overrides the collection's own.
func Parse(b []byte, crs string) (*domain.BoundarySet, error) {
	var fc featureCollection
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("geojson type %q, want FeatureCollection", fc.Type)
	}

	if crs == "" {
		crs = DefaultCRS
		if fc.CRS != nil && fc.CRS.Properties.Name != "" {
			crs = NormalizeCRSName(fc.CRS.Properties.Name)
		}
	}

	set := &domain.BoundarySet{CRS: crs, Records: make([]domain.BoundaryRecord, 0, len(fc.Features))}
	for _, f := range fc.Features {
		rec := domain.BoundaryRecord{Attributes: make(map[string]string, len(f.Properties))}
		for k, v := range f.Properties {
			if v == nil {
				continue
			}
			rec.Attributes[k] = strings.TrimSpace(fmt.Sprint(v))
		}
		if len(f.Geometry) > 0 && string(f.Geometry) != "null" {
			if g, err := gj.Decode(f.Geometry); err == nil {
				rec.Geometry, _ = g.(geom.Polygonal)
			}
		}
		set.Records = append(set.Records, rec)
	}
	return set, nil
}

// NormalizeCRSName maps OGC URNs such as urn:ogc:def:crs:EPSG::3035 to EPSG:3035.
func NormalizeCRSName(name string) string {
	upper := strings.ToUpper(name)
	if upper == "URN:OGC:DEF:CRS:OGC:1.3:CRS84" {
		return DefaultCRS
	}
	if i := strings.Index(upper, "EPSG:"); i >= 0 {
		code := strings.TrimLeft(upper[i+len("EPSG:"):], ":")
		return "EPSG:" + code
	}
	return name
}
