package ports

import "github.com/ctessum/geom"

// Reprojector transforms polygons between coordinate reference systems.
type Reprojector interface {
	Reproject(g geom.Polygonal, from, to string) (geom.Polygonal, error)
}
