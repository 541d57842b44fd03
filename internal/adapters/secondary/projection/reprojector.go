package projection

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"spatialization-module/internal/core/ports/output"
)

// epsgDefs lists the registered codes resolvable without an EPSG database.
var epsgDefs = map[string]string{
	"EPSG:4326":   "+proj=longlat +datum=WGS84 +no_defs",
	"EPSG:4258":   "+proj=longlat +ellps=GRS80 +no_defs",
	"EPSG:4269":   "+proj=longlat +datum=NAD83 +no_defs",
	"EPSG:3857":   "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
	"EPSG:900913": "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
	"EPSG:3035":   "+proj=laea +lat_0=52 +lon_0=10 +x_0=4321000 +y_0=3210000 +ellps=GRS80 +units=m +no_defs",
	"EPSG:2154":   "+proj=lcc +lat_1=49 +lat_2=44 +lat_0=46.5 +lon_0=3 +x_0=700000 +y_0=6600000 +ellps=GRS80 +units=m +no_defs",
	"ESRI:54009":  "+proj=moll +lon_0=0 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs",
}

// Reprojector transforms polygons with github.com/ctessum/geom/proj. Parsed
// reference systems and transforms are cached.
type Reprojector struct {
	mu         sync.Mutex
	srs        map[string]*proj.SR
	transforms map[[2]string]proj.Transformer
}

func NewReprojector() *Reprojector {
	return &Reprojector{
		srs:        make(map[string]*proj.SR),
		transforms: make(map[[2]string]proj.Transformer),
	}
}

var _ ports.Reprojector = (*Reprojector)(nil)

// Definition resolves a CRS identifier into a proj4 or WKT definition.
// EPSG:326xx and EPSG:327xx resolve to UTM zones.
func Definition(crs string) (string, error) {
	crs = strings.TrimSpace(crs)
	if strings.HasPrefix(crs, "+") || strings.HasPrefix(strings.ToUpper(crs), "PROJCS") || strings.HasPrefix(strings.ToUpper(crs), "GEOGCS") {
		return crs, nil
	}

	key := strings.ToUpper(crs)
	if def, ok := epsgDefs[key]; ok {
		return def, nil
	}
	if code, ok := strings.CutPrefix(key, "EPSG:"); ok {
		n, err := strconv.Atoi(code)
		if err == nil && n > 32600 && n <= 32760 && n%100 != 0 && n%100 <= 60 {
			zone := n % 100
			south := ""
			if n > 32700 {
				south = " +south"
			}
			return fmt.Sprintf("+proj=utm +zone=%d%s +datum=WGS84 +units=m +no_defs", zone, south), nil
		}
	}
	return "", fmt.Errorf("unknown crs %q", crs)
}

func (r *Reprojector) sr(crs string) (*proj.SR, error) {
	if sr, ok := r.srs[crs]; ok {
		return sr, nil
	}
	def, err := Definition(crs)
	if err != nil {
		return nil, err
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", crs, err)
	}
	r.srs[crs] = sr
	return sr, nil
}

func (r *Reprojector) transform(from, to string) (proj.Transformer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := [2]string{from, to}
	if t, ok := r.transforms[key]; ok {
		return t, nil
	}
	src, err := r.sr(from)
	if err != nil {
		return nil, err
	}
	dst, err := r.sr(to)
	if err != nil {
		return nil, err
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("%s -> %s: %w", from, to, err)
	}
	r.transforms[key] = t
	return t, nil
}

func (r *Reprojector) Reproject(g geom.Polygonal, from, to string) (geom.Polygonal, error) {
	t, err := r.transform(from, to)
	if err != nil {
		return nil, err
	}
	out, err := g.Transform(t)
	if err != nil {
		return nil, err
	}
	p, ok := out.(geom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("reprojected geometry is %T, not polygonal", out)
	}
	return p, nil
}
