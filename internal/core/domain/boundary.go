package domain

import (
	"strings"

	"github.com/ctessum/geom"
)

// BoundaryRecord is one row of an administrative boundary dataset.
// Geometry is nil when the row has no usable polygon.
type BoundaryRecord struct {
	Geometry   geom.Polygonal
	Attributes map[string]string
}

func (r BoundaryRecord) Attr(column string) string {
	return r.Attributes[column]
}

// BoundarySet is a loaded boundary dataset. It is read-only after loading and
// safe to share between workers.
type BoundarySet struct {
	CRS     string
	Records []BoundaryRecord
}

// ChildrenOf returns the records whose parentColumn equals parentID, in row order.
func (s *BoundarySet) ChildrenOf(parentColumn, parentID string) []BoundaryRecord {
	var out []BoundaryRecord
	for _, r := range s.Records {
		if r.Attr(parentColumn) == parentID {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the first record whose column equals id.
func (s *BoundarySet) Find(column, id string) (BoundaryRecord, bool) {
	for _, r := range s.Records {
		if r.Attr(column) == id {
			return r, true
		}
	}
	return BoundaryRecord{}, false
}

// BoundarySpec describes where a boundary dataset lives and which columns link
// a subregion to its parent.
type BoundarySpec struct {
	Kind            string `json:"kind" mapstructure:"kind" yaml:"kind"` // shapefile, geojson, postgis
	Path            string `json:"path,omitempty" mapstructure:"path" yaml:"path,omitempty"`
	Table           string `json:"table,omitempty" mapstructure:"table" yaml:"table,omitempty"`
	GeometryColumn  string `json:"geometry_column,omitempty" mapstructure:"geometry_column" yaml:"geometry_column,omitempty"`
	OrderBy         string `json:"order_by,omitempty" mapstructure:"order_by" yaml:"order_by,omitempty"`
	SubregionColumn string `json:"subregion_column" mapstructure:"subregion_column" yaml:"subregion_column"`
	ParentColumn    string `json:"parent_column" mapstructure:"parent_column" yaml:"parent_column"`

	// CRS overrides the reference system declared by the dataset.
	CRS string `json:"crs,omitempty" mapstructure:"crs" yaml:"crs,omitempty"`
}

// SameCRS reports whether two CRS identifiers name the same reference system.
// Empty identifiers never match.
func SameCRS(a, b string) bool {
	a, b = normalizeCRS(a), normalizeCRS(b)
	return a != "" && a == b
}

func normalizeCRS(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
