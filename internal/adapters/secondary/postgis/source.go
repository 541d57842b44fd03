package postgis

import (
	"context"
	"fmt"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/wkb"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"spatialization-module/internal/core/domain"
	output "spatialization-module/internal/core/ports/output"
)

const defaultGeometryColumn = "geom"

type boundarySource struct {
	pool *pgxpool.Pool
	spec domain.BoundarySpec
}

// NewBoundarySource reads boundaries from a PostGIS table.
func NewBoundarySource(pool *pgxpool.Pool, spec domain.BoundarySpec) output.BoundarySource {
	return &boundarySource{pool: pool, spec: spec}
}

// BuildQuery returns the SELECT for spec. Identifiers are quoted; the table may
// be schema qualified.
func BuildQuery(spec domain.BoundarySpec) (string, error) {
	if spec.Table == "" || spec.SubregionColumn == "" {
		return "", fmt.Errorf("postgis source needs a table and a subregion column: %w", domain.ErrInvalidRunRequest)
	}
	geomCol := spec.GeometryColumn
	if geomCol == "" {
		geomCol = defaultGeometryColumn
	}
	parentCol := spec.ParentColumn
	if parentCol == "" {
		parentCol = spec.SubregionColumn
	}

	g := pgx.Identifier{geomCol}.Sanitize()
	table := pgx.Identifier(strings.Split(spec.Table, ".")).Sanitize()
	query := fmt.Sprintf(`
		SELECT ST_AsBinary(%s), ST_SRID(%s), %s::text, %s::text
		FROM %s`,
		g, g,
		pgx.Identifier{spec.SubregionColumn}.Sanitize(),
		pgx.Identifier{parentCol}.Sanitize(),
		table,
	)
	if spec.OrderBy != "" {
		query += "\n\t\tORDER BY " + pgx.Identifier{spec.OrderBy}.Sanitize()
	}
	return query, nil
}

func (s *boundarySource) Load(ctx context.Context) (*domain.BoundarySet, error) {
	query, err := BuildQuery(s.spec)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query boundaries from %s: %w", s.spec.Table, err)
	}
	defer rows.Close()

	set := &domain.BoundarySet{CRS: s.spec.CRS}
	parentCol := s.spec.ParentColumn
	if parentCol == "" {
		parentCol = s.spec.SubregionColumn
	}
	for rows.Next() {
		var (
			raw      []byte
			srid     *int32
			subID    *string
			parentID *string
		)
		if err := rows.Scan(&raw, &srid, &subID, &parentID); err != nil {
			return nil, fmt.Errorf("scan boundary row: %w", err)
		}

		rec := domain.BoundaryRecord{Attributes: map[string]string{}}
		if subID != nil {
			rec.Attributes[s.spec.SubregionColumn] = strings.TrimSpace(*subID)
		}
		if parentID != nil {
			rec.Attributes[parentCol] = strings.TrimSpace(*parentID)
		}
		if raw != nil {
			if g, err := wkb.Decode(raw); err == nil {
				rec.Geometry, _ = g.(geom.Polygonal)
			}
		}
		if set.CRS == "" && srid != nil && *srid > 0 {
			set.CRS = fmt.Sprintf("EPSG:%d", *srid)
		}
		set.Records = append(set.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boundaries: %w", err)
	}
	return set, nil
}
