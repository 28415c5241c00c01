package crs

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
)

const (
	prjWGS84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

	prjUTM19S = `PROJCS["WGS_1984_UTM_Zone_19S",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",500000.0],PARAMETER["False_Northing",10000000.0],PARAMETER["Central_Meridian",-69.0],PARAMETER["Scale_Factor",0.9996],PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`

	prjWebMercator = `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Mercator_Auxiliary_Sphere"],PARAMETER["False_Easting",0.0],PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",0.0],PARAMETER["Standard_Parallel_1",0.0],PARAMETER["Auxiliary_Sphere_Type",0.0],UNIT["Meter",1.0]]`

	prjPSAD56 = `GEOGCS["GCS_Provisional_S_American_1956",DATUM["D_Provisional_S_American_1956",SPHEROID["International_1924",6378388.0,297.0]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

	prjOGCWithAuthority = `PROJCS["WGS 84 / UTM zone 18S",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",-75],PARAMETER["scale_factor",0.9996],PARAMETER["false_easting",500000],PARAMETER["false_northing",10000000],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","32718"]]`
)

func near(a, b orb.Point, tol float64) bool {
	return math.Abs(a[0]-b[0]) <= tol && math.Abs(a[1]-b[1]) <= tol
}

func TestParsePRJ_WGS84IsCanonical(t *testing.T) {
	c, err := ParsePRJ(prjWGS84)
	if err != nil {
		t.Fatalf("ParsePRJ: %v", err)
	}
	if !c.IsCanonical() || c.EPSG != 4326 {
		t.Fatalf("got %+v, want canonical 4326", c)
	}
	p := orb.Point{-69.5, -11.25}
	if got := c.ToWGS84(p); got != p {
		t.Fatalf("canonical CRS must not move coordinates: %v", got)
	}
}

func TestParsePRJ_UTM_RoundTrip(t *testing.T) {
	c, err := ParsePRJ(prjUTM19S)
	if err != nil {
		t.Fatalf("ParsePRJ: %v", err)
	}
	if c.IsCanonical() {
		t.Fatalf("UTM must not be canonical")
	}
	if c.EPSG != 32719 {
		t.Fatalf("EPSG=%d want 32719", c.EPSG)
	}

	onMeridian := c.FromWGS84(orb.Point{-69, -12}).(orb.Point)
	if math.Abs(onMeridian[0]-500000) > 1e-6 {
		t.Fatalf("central meridian easting=%f want 500000", onMeridian[0])
	}
	if onMeridian[1] >= 10000000 || onMeridian[1] < 8000000 {
		t.Fatalf("southern hemisphere northing=%f out of range", onMeridian[1])
	}

	for _, p := range []orb.Point{{-70.2, -12.6}, {-68.1, -9.9}, {-71.9, -17.3}} {
		grid := c.FromWGS84(p).(orb.Point)
		back := c.ToWGS84(grid).(orb.Point)
		if !near(back, p, 1e-6) {
			t.Fatalf("round trip %v -> %v -> %v", p, grid, back)
		}
	}
}

func TestParsePRJ_AuthorityMatchesParameters(t *testing.T) {
	byAuth, err := ParsePRJ(prjOGCWithAuthority)
	if err != nil {
		t.Fatalf("ParsePRJ: %v", err)
	}
	byCode, err := FromEPSG(32718)
	if err != nil {
		t.Fatalf("FromEPSG: %v", err)
	}
	grid := orb.Point{612345.6, 8654321.0}
	a := byAuth.ToWGS84(grid).(orb.Point)
	b := byCode.ToWGS84(orb.Point{612345.6, 8654321.0}).(orb.Point)
	if !near(a, b, 1e-12) {
		t.Fatalf("authority and code resolution disagree: %v vs %v", a, b)
	}
}

func TestParsePRJ_WebMercator(t *testing.T) {
	c, err := ParsePRJ(prjWebMercator)
	if err != nil {
		t.Fatalf("ParsePRJ: %v", err)
	}
	if c.EPSG != 3857 {
		t.Fatalf("EPSG=%d want 3857", c.EPSG)
	}
	got := c.ToWGS84(orb.Point{20037508.342789244, 0}).(orb.Point)
	if !near(got, orb.Point{180, 0}, 1e-9) {
		t.Fatalf("got %v want (180,0)", got)
	}
}

func TestParsePRJ_UnknownDatumFails(t *testing.T) {
	_, err := ParsePRJ(prjPSAD56)
	if !errors.Is(err, apperr.ErrUnknownProjection) {
		t.Fatalf("err=%v want UnknownProjection", err)
	}
}

func TestParsePRJ_GarbageAndEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "not wkt", `PROJCS["x",GEOGCS[`, `LOCAL_CS["arbitrary"]`} {
		if _, err := ParsePRJ(in); !errors.Is(err, apperr.ErrUnknownProjection) {
			t.Fatalf("ParsePRJ(%q) err=%v want UnknownProjection", in, err)
		}
	}
}

func TestFromEPSG(t *testing.T) {
	if c, err := FromEPSG(4674); err != nil || !c.IsCanonical() {
		t.Fatalf("SIRGAS 2000 geographic must be canonical: %+v %v", c, err)
	}
	if _, err := FromEPSG(31979); err != nil {
		t.Fatalf("SIRGAS 2000 UTM 19S: %v", err)
	}
	if _, err := FromEPSG(2154); !errors.Is(err, apperr.ErrUnknownProjection) {
		t.Fatalf("Lambert 93 must be unknown, err=%v", err)
	}
}

func TestParsePRJ_TransverseMercatorInFeet(t *testing.T) {
	const prj = `PROJCS["Local_TM_Feet",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",1640419.9475065617],PARAMETER["False_Northing",32808398.950131233],PARAMETER["Central_Meridian",-69.0],PARAMETER["Scale_Factor",0.9996],PARAMETER["Latitude_Of_Origin",0.0],UNIT["Foot",0.3048]]`
	c, err := ParsePRJ(prj)
	if err != nil {
		t.Fatalf("ParsePRJ: %v", err)
	}
	if c.EPSG != 0 {
		t.Fatalf("EPSG=%d want 0 for a parameter-only system", c.EPSG)
	}
	utm, err := FromEPSG(32719)
	if err != nil {
		t.Fatalf("FromEPSG: %v", err)
	}
	p := orb.Point{-70.2, -12.6}
	feet := c.FromWGS84(p).(orb.Point)
	metres := utm.FromWGS84(p).(orb.Point)
	if math.Abs(feet[0]*0.3048-metres[0]) > 1e-3 || math.Abs(feet[1]*0.3048-metres[1]) > 1e-3 {
		t.Fatalf("feet grid %v does not scale to metres grid %v", feet, metres)
	}
	if back := c.ToWGS84(feet).(orb.Point); !near(back, p, 1e-6) {
		t.Fatalf("round trip %v -> %v", p, back)
	}
}
