// Package crs resolves shapefile coordinate reference systems and reprojects
// geometries into EPSG:4326.
package crs

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
)

// CRS is a resolved source reference system.
type CRS struct {
	Name string
	// EPSG is the best known code, 0 when the definition only carried parameters.
	EPSG int
	// Geographic systems on a WGS84 equivalent datum need no transformation.
	Geographic bool

	toWGS84   orb.Projection
	fromWGS84 orb.Projection
}

// WGS84 is the canonical storage system.
var WGS84 = CRS{Name: "WGS 84", EPSG: 4326, Geographic: true}

// IsCanonical reports whether coordinates are already lon/lat on WGS84.
func (c CRS) IsCanonical() bool { return c.Geographic }

// ToWGS84 reprojects g in place and returns it.
func (c CRS) ToWGS84(g orb.Geometry) orb.Geometry {
	if c.Geographic || c.toWGS84 == nil || g == nil {
		return g
	}
	return project.Geometry(g, c.toWGS84)
}

// FromWGS84 is the inverse of ToWGS84; used when preparing fixtures and exports.
func (c CRS) FromWGS84(g orb.Geometry) orb.Geometry {
	if c.Geographic || c.fromWGS84 == nil || g == nil {
		return g
	}
	return project.Geometry(g, c.fromWGS84)
}

// geographic EPSG codes whose datum is within a metre of WGS84
var wgs84Equivalent = map[int]string{
	4326: "WGS 84",
	4674: "SIRGAS 2000",
	4269: "NAD83",
	4258: "ETRS89",
	4283: "GDA94",
	4619: "SWEREF99",
}

var webMercatorCodes = map[int]struct{}{3857: {}, 900913: {}, 102100: {}, 102113: {}, 3785: {}}

// FromEPSG resolves a bare EPSG code.
func FromEPSG(code int) (CRS, error) {
	if name, ok := wgs84Equivalent[code]; ok {
		return CRS{Name: name, EPSG: code, Geographic: true}, nil
	}
	if _, ok := webMercatorCodes[code]; ok {
		return webMercator(code), nil
	}
	var (
		name  string
		zone  int
		south bool
	)
	switch {
	case code >= 32601 && code <= 32660:
		zone = code - 32600
		name = "WGS 84 / UTM zone " + strconv.Itoa(zone) + "N"
	case code >= 32701 && code <= 32760:
		zone, south = code-32700, true
		name = "WGS 84 / UTM zone " + strconv.Itoa(zone) + "S"
	case code >= 31965 && code <= 31976:
		zone = code - 31954 // 11N..22N
		name = "SIRGAS 2000 / UTM zone " + strconv.Itoa(zone) + "N"
	case code >= 31977 && code <= 31985:
		zone, south = code-31960, true // 17S..25S
		name = "SIRGAS 2000 / UTM zone " + strconv.Itoa(zone) + "S"
	}
	if zone != 0 {
		g, err := utmGrid(zone, south)
		if err != nil {
			return CRS{}, apperr.Wrap(apperr.KindUnknownProjection, err, "EPSG:%d", code)
		}
		return projected(name, code, g), nil
	}
	return CRS{}, apperr.New(apperr.KindUnknownProjection, "EPSG:%d is not supported", code)
}

// ParsePRJ resolves the WKT found in a shapefile .prj sidecar.
func ParsePRJ(wkt string) (CRS, error) {
	if strings.TrimSpace(wkt) == "" {
		return CRS{}, apperr.New(apperr.KindUnknownProjection, "empty projection definition")
	}
	root, err := parseWKT(wkt)
	if err != nil {
		return CRS{}, apperr.Wrap(apperr.KindUnknownProjection, err, "parse projection")
	}

	switch root.Key {
	case "GEOGCS", "GEOGCRS", "GEODCRS":
		return resolveGeographic(root)
	case "PROJCS", "PROJCRS":
		return resolveProjected(root)
	}
	return CRS{}, apperr.New(apperr.KindUnknownProjection, "unsupported projection root %s", root.Key)
}

func resolveGeographic(g *node) (CRS, error) {
	code := g.authority()
	if code != 0 {
		if name, ok := wgs84Equivalent[code]; ok {
			return CRS{Name: name, EPSG: code, Geographic: true}, nil
		}
	}
	if !wgs84Datum(g) {
		return CRS{}, apperr.New(apperr.KindUnknownProjection, "datum of %q requires a datum shift", g.name())
	}
	if u := g.child("UNIT"); u != nil {
		if f, ok := u.float(1); ok && math.Abs(f-math.Pi/180) > 1e-9 {
			return CRS{}, apperr.New(apperr.KindUnknownProjection, "angular unit %q", u.name())
		}
	}
	if pm := g.child("PRIMEM"); pm != nil {
		if f, ok := pm.float(1); ok && f != 0 {
			return CRS{}, apperr.New(apperr.KindUnknownProjection, "prime meridian %q", pm.name())
		}
	}
	if code == 0 {
		code = 4326
	}
	return CRS{Name: g.name(), EPSG: code, Geographic: true}, nil
}

// wgs84Datum accepts WGS84 and GRS80 based datums without a declared shift.
func wgs84Datum(g *node) bool {
	d := g.child("DATUM")
	if d == nil {
		return false
	}
	if tw := d.child("TOWGS84"); tw != nil {
		for i := range tw.Values {
			if f, ok := tw.float(i); ok && f != 0 {
				return false
			}
		}
	}
	s := d.child("SPHEROID")
	if s == nil {
		s = d.child("ELLIPSOID")
	}
	a, okA := s.float(1)
	invF, okF := s.float(2)
	if !okA || !okF {
		return false
	}
	return a == 6378137 && (math.Abs(invF-298.257223563) < 1e-6 || math.Abs(invF-298.257222101) < 1e-6)
}

var utmNamePattern = regexp.MustCompile(`(?i)UTM[_ ]zone[_ ](\d{1,2})([NS])`)

func resolveProjected(p *node) (CRS, error) {
	base := p.child("GEOGCS")
	if base == nil {
		base = p.child("BASEGEOGCRS")
	}
	code := p.authority()

	if code != 0 {
		if c, err := FromEPSG(code); err == nil {
			return c, nil
		}
	}
	if base == nil {
		return CRS{}, apperr.New(apperr.KindUnknownProjection, "projected system %q has no geographic base", p.name())
	}
	if _, err := resolveGeographic(base); err != nil {
		return CRS{}, err
	}

	method := strings.ToLower(strings.ReplaceAll(p.child("PROJECTION").name(), " ", "_"))
	name := p.name()
	switch {
	case method == "mercator_auxiliary_sphere" || method == "popular_visualisation_pseudo_mercator" ||
		strings.Contains(strings.ToLower(name), "web_mercator") || strings.Contains(strings.ToLower(name), "pseudo-mercator"):
		c := webMercator(code)
		c.Name = name
		return c, nil

	case method == "transverse_mercator":
		tm, err := tmFromParams(p, base)
		if err != nil {
			return CRS{}, err
		}
		g, err := tm.grid()
		if err != nil {
			return CRS{}, apperr.Wrap(apperr.KindUnknownProjection, err, "projection %q", name)
		}
		if code == 0 {
			code = utmCodeFromName(name)
		}
		return projected(name, code, g), nil
	}
	return CRS{}, apperr.New(apperr.KindUnknownProjection, "projection method %q of %q", method, name)
}

func tmFromParams(p, base *node) (tmParams, error) {
	params := map[string]float64{}
	for _, pn := range p.children("PARAMETER") {
		if v, ok := pn.float(1); ok {
			params[strings.ToLower(pn.name())] = v
		}
	}
	lon0, ok := params["central_meridian"]
	if !ok {
		lon0, ok = params["longitude_of_origin"]
	}
	if !ok {
		return tmParams{}, apperr.New(apperr.KindUnknownProjection, "transverse mercator without central meridian")
	}
	k0, ok := params["scale_factor"]
	if !ok {
		k0 = 1
	}
	unit := 1.0
	if u := p.child("UNIT"); u != nil {
		if f, ok := u.float(1); ok && f > 0 {
			unit = f
		}
	}
	ellps := "WGS84"
	if s := base.child("DATUM").child("SPHEROID"); s != nil {
		if invF, ok := s.float(2); ok && math.Abs(invF-298.257222101) < 1e-6 {
			ellps = "GRS80"
		}
	}
	return tmParams{
		ellps: ellps,
		lon0:  lon0,
		lat0:  params["latitude_of_origin"],
		k0:    k0,
		fe:    params["false_easting"],
		fn:    params["false_northing"],
		unit:  unit,
	}, nil
}

func utmCodeFromName(name string) int {
	m := utmNamePattern.FindStringSubmatch(name)
	if m == nil || !strings.Contains(strings.ToUpper(name), "WGS") {
		return 0
	}
	z, _ := strconv.Atoi(m[1])
	if z < 1 || z > 60 {
		return 0
	}
	if strings.EqualFold(m[2], "S") {
		return 32700 + z
	}
	return 32600 + z
}

func projected(name string, code int, g grid) CRS {
	return CRS{Name: name, EPSG: code, toWGS84: g.inverse, fromWGS84: g.forward}
}

func webMercator(code int) CRS {
	if code == 0 {
		code = 3857
	}
	return CRS{
		Name:      "WGS 84 / Pseudo-Mercator",
		EPSG:      code,
		toWGS84:   project.Mercator.ToWGS84,
		fromWGS84: project.WGS84.ToMercator,
	}
}
