package domain

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/spf13/afero"
)

type AssetKind string

const (
	AssetKindRaster AssetKind = "raster"
	AssetKindVector AssetKind = "vector"
)

var assetExtensions = map[AssetKind][]string{
	AssetKindRaster: {".tif", ".tiff"},
	AssetKindVector: {".shp", ".geojson", ".json"},
}

// KindForPath infers the asset kind from the file extension.
func KindForPath(path string) (AssetKind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for kind, exts := range assetExtensions {
		for _, e := range exts {
			if e == ext {
				return kind, true
			}
		}
	}
	return "", false
}

// GeoAsset is one georeferenced file registered with a region. It is a value:
// masking produces a new GeoAsset and never changes an existing one.
type GeoAsset struct {
	Path  string    `json:"path" yaml:"path"`
	Kind  AssetKind `json:"kind" yaml:"kind"`
	Name  string    `json:"name" yaml:"name"`
	Year  int       `json:"year,omitempty" yaml:"year,omitempty"`
	Level int       `json:"level" yaml:"level"`

	// CRS overrides the coordinate reference read from the file itself.
	CRS string `json:"crs,omitempty" yaml:"crs,omitempty"`
}

// NewGeoAsset validates that path exists on fs and that its extension matches kind.
func NewGeoAsset(fs afero.Fs, path string, kind AssetKind, name string, year, level int) (GeoAsset, error) {
	exts, ok := assetExtensions[kind]
	if !ok {
		return GeoAsset{}, fmt.Errorf("%s: %w", kind, ErrInvalidAssetKind)
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return GeoAsset{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !exists {
		return GeoAsset{}, fmt.Errorf("%s: %w", path, ErrAssetNotFound)
	}

	ext := strings.ToLower(filepath.Ext(path))
	matched := false
	for _, e := range exts {
		if e == ext {
			matched = true
			break
		}
	}
	if !matched {
		return GeoAsset{}, fmt.Errorf("%s is not a %s: %w", path, kind, ErrAssetKindMismatch)
	}

	return GeoAsset{
		Path:  path,
		Kind:  kind,
		Name:  name,
		Year:  year,
		Level: level,
	}, nil
}

func (a GeoAsset) Dir() string {
	return filepath.Dir(a.Path)
}

func (a GeoAsset) Ext() string {
	return filepath.Ext(a.Path)
}

func (a GeoAsset) IsRaster() bool {
	return a.Kind == AssetKindRaster
}

// WithCRS returns a copy of a carrying the given CRS override.
func (a GeoAsset) WithCRS(crs string) GeoAsset {
	a.CRS = crs
	return a
}

// SafeFileName turns an administrative identifier into a single path element.
func SafeFileName(id string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", string(filepath.Separator), "_")
	s := r.Replace(strings.TrimSpace(id))
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// MaskJob is one transient request to clip a raster asset by a polygon.
type MaskJob struct {
	Source     GeoAsset
	Polygon    geom.Polygonal
	PolygonCRS string
	OutputPath string
	Overwrite  bool
	// Level is assigned to the produced asset.
	Level int
}

// MaskResult is the asset produced by a MaskJob. Cached is set when the output
// already existed and nothing was written.
type MaskResult struct {
	Asset  GeoAsset
	Cached bool
}
