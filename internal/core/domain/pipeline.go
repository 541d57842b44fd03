package domain

import (
	"fmt"
	"strings"
)

// UnitPlaceholder in an AssetSpec path is replaced by the top-level unit id.
const UnitPlaceholder = "{unit}"

// DefaultFlatSubdir is where flat jobs write per-unit rasters, next to the source.
const DefaultFlatSubdir = "subregions"

// AssetSpec registers one raster with every top-level unit of a run.
type AssetSpec struct {
	Name string `json:"name" mapstructure:"name" yaml:"name"`
	Year int    `json:"year,omitempty" mapstructure:"year" yaml:"year,omitempty"`
	Path string `json:"path" mapstructure:"path" yaml:"path"`
	CRS  string `json:"crs,omitempty" mapstructure:"crs" yaml:"crs,omitempty"`
}

// PathFor resolves the unit placeholder of the asset path.
func (a AssetSpec) PathFor(unit string) string {
	return strings.ReplaceAll(a.Path, UnitPlaceholder, SafeFileName(unit))
}

// PipelineRequest is the single entry point of a run.
type PipelineRequest struct {
	Units  []string       `json:"units" yaml:"units"`
	Levels []BoundarySpec `json:"levels" yaml:"levels"`
	Assets []AssetSpec    `json:"assets" yaml:"assets"`
	Mode   JobMode        `json:"mode" yaml:"mode"`

	// FlatSubdir names the output directory of flat jobs, relative to each asset.
	FlatSubdir string     `json:"flat_subdir,omitempty" yaml:"flat_subdir,omitempty"`
	Options    RunOptions `json:"options" yaml:"options"`
}

func (r PipelineRequest) Validate() error {
	if len(r.Units) == 0 {
		return fmt.Errorf("no units: %w", ErrInvalidRunRequest)
	}
	seen := make(map[string]struct{}, len(r.Units))
	for _, u := range r.Units {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("empty unit id: %w", ErrInvalidRunRequest)
		}
		if _, dup := seen[u]; dup {
			return fmt.Errorf("duplicate unit %q: %w", u, ErrInvalidRunRequest)
		}
		seen[u] = struct{}{}
	}

	if len(r.Assets) == 0 {
		return fmt.Errorf("no assets: %w", ErrInvalidRunRequest)
	}
	names := make(map[string]struct{}, len(r.Assets))
	for _, a := range r.Assets {
		if a.Name == "" || a.Path == "" {
			return fmt.Errorf("asset needs a name and a path: %w", ErrInvalidRunRequest)
		}
		if _, dup := names[a.Name]; dup {
			return fmt.Errorf("duplicate asset name %q: %w", a.Name, ErrInvalidRunRequest)
		}
		names[a.Name] = struct{}{}
	}

	if len(r.Levels) == 0 {
		return fmt.Errorf("no boundary levels: %w", ErrInvalidRunRequest)
	}
	for i, l := range r.Levels {
		if l.SubregionColumn == "" {
			return fmt.Errorf("level %d has no subregion column: %w", i, ErrInvalidRunRequest)
		}
		if r.Mode == JobModeTree && l.ParentColumn == "" {
			return fmt.Errorf("level %d has no parent column: %w", i, ErrInvalidRunRequest)
		}
	}

	switch r.Mode {
	case JobModeTree, JobModeFlat:
	default:
		return fmt.Errorf("%q: %w", r.Mode, ErrInvalidJobMode)
	}
	return r.Options.Validate()
}
