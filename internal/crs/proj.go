package crs

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-spatial/proj/core"
	_ "github.com/go-spatial/proj/operations" // registers utm, etmerc
	"github.com/go-spatial/proj/support"
	"github.com/paulmach/orb"
)

// grid is a projected system evaluated by a proj operation. unit is metres per grid unit.
type grid struct {
	op   core.IConvertLPToXY
	unit float64
}

func newGrid(def string, unit float64) (grid, error) {
	ps, err := support.NewProjString(def)
	if err != nil {
		return grid{}, fmt.Errorf("proj string %q: %w", def, err)
	}
	_, opx, err := core.NewSystem(ps)
	if err != nil {
		return grid{}, fmt.Errorf("proj system %q: %w", def, err)
	}
	op, ok := opx.(core.IConvertLPToXY)
	if !ok {
		return grid{}, fmt.Errorf("proj %q has no lon/lat conversion", def)
	}
	if unit <= 0 {
		unit = 1
	}
	return grid{op: op, unit: unit}, nil
}

func utmGrid(zone int, south bool) (grid, error) {
	def := "+proj=utm +zone=" + strconv.Itoa(zone) + " +ellps=WGS84"
	if south {
		def += " +south"
	}
	return newGrid(def, 1)
}

// tmParams are Transverse Mercator parameters as read from a .prj; offsets are in grid units.
type tmParams struct {
	ellps      string
	lon0, lat0 float64 // degrees
	k0         float64
	fe, fn     float64
	unit       float64
}

func (p tmParams) grid() (grid, error) {
	unit := p.unit
	if unit <= 0 {
		unit = 1
	}
	def := strings.Join([]string{
		"+proj=etmerc",
		"+lat_0=" + ftoa(p.lat0),
		"+lon_0=" + ftoa(p.lon0),
		"+k_0=" + ftoa(p.k0),
		"+x_0=" + ftoa(p.fe*unit),
		"+y_0=" + ftoa(p.fn*unit),
		"+ellps=" + p.ellps,
	}, " ")
	return newGrid(def, unit)
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// inverse maps grid coordinates to lon/lat degrees. Points proj cannot invert become NaN and
// are dropped by geometry repair.
func (g grid) inverse(p orb.Point) orb.Point {
	lp, err := g.op.Inverse(&core.CoordXY{X: p[0] * g.unit, Y: p[1] * g.unit})
	if err != nil {
		return orb.Point{math.NaN(), math.NaN()}
	}
	return orb.Point{support.RToDD(lp.Lam), support.RToDD(lp.Phi)}
}

// forward maps lon/lat degrees to grid coordinates.
func (g grid) forward(p orb.Point) orb.Point {
	xy, err := g.op.Forward(&core.CoordLP{Lam: support.DDToR(p[0]), Phi: support.DDToR(p[1])})
	if err != nil {
		return orb.Point{math.NaN(), math.NaN()}
	}
	return orb.Point{xy.X / g.unit, xy.Y / g.unit}
}
