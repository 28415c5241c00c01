// Package geo holds geometry repair and encoding helpers shared by the loaders and stores.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Repair fixes structural defects: NaN vertices, repeated vertices, unclosed rings and
// degenerate rings or lines. It returns nil when nothing usable is left.
// Self intersections are left for the relational store to buffer away.
func Repair(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case nil:
		return nil
	case orb.Point:
		if !finite(v) {
			return nil
		}
		return v
	case orb.MultiPoint:
		out := make(orb.MultiPoint, 0, len(v))
		for _, p := range v {
			if finite(p) {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case orb.LineString:
		ls := orb.LineString(dedupe(v))
		if len(ls) < 2 {
			return nil
		}
		return ls
	case orb.MultiLineString:
		out := make(orb.MultiLineString, 0, len(v))
		for _, ls := range v {
			if r := Repair(ls); r != nil {
				out = append(out, r.(orb.LineString))
			}
		}
		return collapseLines(out)
	case orb.Ring:
		if r := repairRing(v); r != nil {
			return r
		}
		return nil
	case orb.Polygon:
		if p := repairPolygon(v); p != nil {
			return p
		}
		return nil
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, 0, len(v))
		for _, p := range v {
			if r := repairPolygon(p); r != nil {
				out = append(out, r)
			}
		}
		switch len(out) {
		case 0:
			return nil
		case 1:
			return out[0]
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, 0, len(v))
		for _, c := range v {
			if r := Repair(c); r != nil {
				out = append(out, r)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return g
}

func repairPolygon(p orb.Polygon) orb.Polygon {
	if len(p) == 0 {
		return nil
	}
	outer := repairRing(p[0])
	if outer == nil {
		return nil
	}
	out := orb.Polygon{outer}
	for _, hole := range p[1:] {
		if h := repairRing(hole); h != nil {
			out = append(out, h)
		}
	}
	return out
}

func repairRing(r orb.Ring) orb.Ring {
	pts := dedupe(r)
	if len(pts) > 0 && pts[0] != pts[len(pts)-1] {
		pts = append(pts, pts[0])
	}
	ring := orb.Ring(pts)
	if len(ring) < 4 || ring.Orientation() == 0 {
		return nil
	}
	return ring
}

func dedupe(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, 0, len(pts))
	for _, p := range pts {
		if !finite(p) {
			continue
		}
		if n := len(out); n > 0 && out[n-1] == p {
			continue
		}
		out = append(out, p)
	}
	return out
}

func collapseLines(m orb.MultiLineString) orb.Geometry {
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}

// AssemblePolygons groups shapefile rings into polygons: clockwise rings are shells,
// counter-clockwise rings are holes of the shell that contains them.
func AssemblePolygons(rings []orb.Ring) orb.Geometry {
	var polys orb.MultiPolygon
	var holes []orb.Ring
	for _, r := range rings {
		if len(r) == 0 {
			continue
		}
		if r.Orientation() == orb.CCW && len(polys) > 0 {
			holes = append(holes, r)
			continue
		}
		polys = append(polys, orb.Polygon{r})
	}
	if len(polys) == 0 && len(holes) > 0 {
		// all rings counter-clockwise: treat each as a shell
		for _, h := range holes {
			polys = append(polys, orb.Polygon{h})
		}
		holes = nil
	}
	for _, h := range holes {
		owner := len(polys) - 1
		for i, p := range polys {
			if planar.RingContains(p[0], h[0]) {
				owner = i
				break
			}
		}
		polys[owner] = append(polys[owner], h)
	}
	switch len(polys) {
	case 0:
		return nil
	case 1:
		return polys[0]
	}
	return polys
}

// RepresentativePoint is the point itself, or the planar centroid for other types.
func RepresentativePoint(g orb.Geometry) orb.Point {
	if p, ok := g.(orb.Point); ok {
		return p
	}
	c, _ := planar.CentroidArea(g)
	return c
}

func WKT(g orb.Geometry) string {
	return wkt.MarshalString(g)
}

func GeoJSON(g orb.Geometry) *geojson.Geometry {
	return geojson.NewGeometry(g)
}
