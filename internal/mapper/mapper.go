// Package mapper converts between geometric coordinates and H3 cells.
package mapper

import (
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/geoportal/internal/core/model"
)

type Interface interface {
	CellForPoint(p orb.Point, res int) (string, error)
	CellsForBBox(bb model.BBox, res int) (model.Cells, error)
	CellsForPolygon(poly orb.Geometry, res int) (model.Cells, error)
}
