// Package shapetest writes small shapefile bundles for tests.
package shapetest

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	shp "github.com/jonas-p/go-shp"
)

const PRJWGS84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

const PRJUTM19S = `PROJCS["WGS_1984_UTM_Zone_19S",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",500000.0],PARAMETER["False_Northing",10000000.0],PARAMETER["Central_Meridian",-69.0],PARAMETER["Scale_Factor",0.9996],PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`

type Feature struct {
	Shape shp.Shape
	Attrs []any
}

// Write creates name.shp (+ .shx, .dbf and, when prj != "", .prj) in dir and returns the .shp path.
func Write(t testing.TB, dir, name string, st shp.ShapeType, fields []shp.Field, prj string, feats []Feature) string {
	t.Helper()
	path := filepath.Join(dir, name+".shp")
	w, err := shp.Create(path, st)
	if err != nil {
		t.Fatalf("shp.Create: %v", err)
	}
	if len(fields) > 0 {
		if err := w.SetFields(fields); err != nil {
			t.Fatalf("SetFields: %v", err)
		}
	}
	for _, f := range feats {
		row := w.Write(f.Shape)
		for i, v := range f.Attrs {
			if v == nil {
				continue
			}
			if err := w.WriteAttribute(int(row), i, v); err != nil {
				t.Fatalf("WriteAttribute(%d,%d): %v", row, i, err)
			}
		}
	}
	w.Close()
	if prj != "" {
		if err := os.WriteFile(filepath.Join(dir, name+".prj"), []byte(prj), 0o600); err != nil {
			t.Fatalf("write prj: %v", err)
		}
	}
	return path
}

// Square is a clockwise (shell) polygon with its lower left corner at x,y.
func Square(x, y, size float64) shp.Shape {
	ring := []shp.Point{{X: x, Y: y}, {X: x, Y: y + size}, {X: x + size, Y: y + size}, {X: x + size, Y: y}, {X: x, Y: y}}
	p := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring}))
	return &p
}

func Point(x, y float64) shp.Shape {
	return &shp.Point{X: x, Y: y}
}

// Zip bundles every sidecar of the shapefile at shpPath into a zip archive.
func Zip(t testing.TB, shpPath string) []byte {
	t.Helper()
	base := strings.TrimSuffix(shpPath, ".shp")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj", ".cpg"} {
		b, err := os.ReadFile(base + ext)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			t.Fatalf("read %s: %v", ext, err)
		}
		fw, err := zw.Create(filepath.Base(base) + ext)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := fw.Write(b); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}
