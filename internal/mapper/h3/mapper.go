package h3mapper

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/geoportal/internal/core/model"
	"github.com/mohammed-shakir/geoportal/internal/mapper"
)

type Mapper struct{}

var _ mapper.Interface = (*Mapper)(nil)

func New() *Mapper { return &Mapper{} }

// CellForPoint returns the cell containing p (lon, lat in EPSG:4326).
func (m *Mapper) CellForPoint(p orb.Point, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat(), Lng: p.Lon()}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return c.String(), nil
}

// CellsForBBox covers bb with cells, padded by one ring so features near the edge whose
// cell centre falls outside the box are still candidates.
func (m *Mapper) CellsForBBox(bb model.BBox, res int) (model.Cells, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	// v4 wants degrees
	outer := h3.GeoLoop{
		{Lat: bb.Y1, Lng: bb.X1},
		{Lat: bb.Y1, Lng: bb.X2},
		{Lat: bb.Y2, Lng: bb.X2},
		{Lat: bb.Y2, Lng: bb.X1},
	}
	inner, err := polyfillOne(outer, nil, res)
	if err != nil {
		return nil, err
	}
	seeds := make([]h3.Cell, 0, len(inner)+1)
	for _, s := range inner {
		var c h3.Cell
		if err := c.UnmarshalText([]byte(s)); err == nil {
			seeds = append(seeds, c)
		}
	}
	// small boxes may contain no cell centre at all
	centre, err := h3.LatLngToCell(h3.LatLng{Lat: (bb.Y1 + bb.Y2) / 2, Lng: (bb.X1 + bb.X2) / 2}, res)
	if err == nil {
		seeds = append(seeds, centre)
	}

	seen := make(map[string]struct{}, len(seeds)*2)
	out := make([]string, 0, len(seeds)*2)
	for _, c := range seeds {
		disk, err := h3.GridDisk(c, 1)
		if err != nil {
			return nil, fmt.Errorf("h3 grid disk: %w", err)
		}
		for _, d := range disk {
			s := d.String()
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

// CellsForPolygon accepts orb.Polygon or orb.MultiPolygon.
func (m *Mapper) CellsForPolygon(g orb.Geometry, res int) (model.Cells, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}

	switch poly := g.(type) {
	case orb.Polygon:
		return polygonCells(poly, res)

	case orb.MultiPolygon:
		if len(poly) == 0 {
			return nil, errors.New("empty multipolygon")
		}
		seen := make(map[string]struct{})
		var out []string
		for pi, p := range poly {
			cells, err := polygonCells(p, res)
			if err != nil {
				return nil, fmt.Errorf("polygon %d: %w", pi, err)
			}
			for _, c := range cells {
				if _, ok := seen[c]; !ok {
					seen[c] = struct{}{}
					out = append(out, c)
				}
			}
		}
		sort.Strings(out)
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported geometry type: %T", g)
	}
}

func polygonCells(p orb.Polygon, res int) (model.Cells, error) {
	if len(p) == 0 {
		return nil, errors.New("empty polygon")
	}
	outer := toLoop(p[0])
	if len(outer) < 3 {
		return nil, errors.New("outer ring has < 3 distinct vertices")
	}
	var holes []h3.GeoLoop
	for i := 1; i < len(p); i++ {
		h := toLoop(p[i])
		if len(h) < 3 {
			return nil, fmt.Errorf("hole %d has < 3 distinct vertices", i-1)
		}
		holes = append(holes, h)
	}
	return polyfillOne(outer, holes, res)
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// toLoop converts a ring to an h3.GeoLoop, dropping the closing duplicate vertex.
func toLoop(r orb.Ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(r))
	for _, p := range r {
		loop = append(loop, h3.LatLng{Lat: p.Lat(), Lng: p.Lon()})
	}
	if len(loop) >= 2 {
		last := loop[len(loop)-1]
		first := loop[0]
		if last.Lat == first.Lat && last.Lng == first.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}

// polyfillOne computes unique cells and returns them sorted for determinism.
func polyfillOne(outer h3.GeoLoop, holes []h3.GeoLoop, res int) (model.Cells, error) {
	if len(outer) < 3 {
		return nil, errors.New("outer ring has < 3 distinct vertices")
	}
	poly := h3.GeoPolygon{
		GeoLoop: outer,
		Holes:   holes,
	}

	indexes, err := h3.PolygonToCells(poly, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	out := make([]string, 0, len(indexes))
	seen := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		s := idx.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
