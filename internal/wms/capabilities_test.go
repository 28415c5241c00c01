package wms

import (
	"errors"
	"strings"
	"testing"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
)

const base = "https://maps.example.org/geoserver/wms"

func mustParse(t *testing.T) *Capabilities {
	t.Helper()
	c, err := ParseCapabilities(capsDoc(base), Version)
	if err != nil {
		t.Fatalf("ParseCapabilities: %v", err)
	}
	return c
}

func TestParseCapabilities_ServiceAndOperations(t *testing.T) {
	c := mustParse(t)
	if c.Version != "1.1.1" || c.UpdateSequence != "42" {
		t.Fatalf("version=%q seq=%q", c.Version, c.UpdateSequence)
	}
	if c.Service.Name != "OGC:WMS" || c.Service.Title != "Field Survey" || len(c.Service.Keywords) != 2 {
		t.Fatalf("service=%+v", c.Service)
	}
	if c.Provider.Name != "Survey Office" || c.Provider.ContactPerson != "Ana Field" || c.Provider.Email != "maps@example.org" || c.Provider.URL != base {
		t.Fatalf("provider=%+v", c.Provider)
	}
	if got := strings.Join(c.OperationNames(), ","); got != "GetCapabilities,GetMap,GetFeatureInfo" {
		t.Fatalf("operations=%s", got)
	}
	op, _ := c.Operation("GetMap")
	if len(op.Formats) != 3 || op.Formats[0] != "image/png" {
		t.Fatalf("getmap formats=%v", op.Formats)
	}
	if got := c.OperationURL("GetFeatureInfo", "get"); got != base+"?SERVICE=WMS&" {
		t.Fatalf("feature info url=%q", got)
	}
	if c.OperationURL("GetLegendGraphic", "Get") != "" {
		t.Fatalf("unexpected legend operation")
	}
	if len(c.ExceptionFormats) != 2 || c.ExceptionFormats[0] != "application/vnd.ogc.se_xml" {
		t.Fatalf("exceptions=%v", c.ExceptionFormats)
	}
}

func TestParseCapabilities_LayerTree(t *testing.T) {
	c := mustParse(t)
	if len(c.Layers) != 1 {
		t.Fatalf("roots=%d", len(c.Layers))
	}
	root := c.Layers[0]
	if root.ID != "" || root.Index != 1 || len(root.Children) != 3 {
		t.Fatalf("root=%+v", root)
	}
	for i, ch := range root.Children {
		if ch.Index != i+1 || ch.Parent != root {
			t.Fatalf("child %d index=%d", i, ch.Index)
		}
	}
	group := root.Children[2]
	if len(group.Children) != 2 || group.Children[1].Index != 2 {
		t.Fatalf("group children=%d", len(group.Children))
	}

	var ids []string
	for _, l := range c.Contents() {
		ids = append(ids, l.ID)
	}
	if got := strings.Join(ids, ","); got != "survey:wells,survey:basemap,survey:group,survey:roads" {
		t.Fatalf("contents=%s", got)
	}
}

func TestParseCapabilities_DeeperDuplicateWins(t *testing.T) {
	c := mustParse(t)
	wells, ok := c.Layer("survey:wells")
	if !ok || wells.Title != "Wells (nested)" {
		t.Fatalf("wells=%+v", wells)
	}
	if wells.Parent == nil || wells.Parent.ID != "survey:group" {
		t.Fatalf("wells parent=%+v", wells.Parent)
	}
	if len(c.Warnings) != 1 || !strings.Contains(c.Warnings[0], "survey:wells") {
		t.Fatalf("warnings=%v", c.Warnings)
	}
	// the shallow entry is still reachable through the tree
	if shallow := c.Layers[0].Children[0]; shallow.Title != "Wells" {
		t.Fatalf("shallow=%+v", shallow)
	}
}

func TestParseCapabilities_Inheritance(t *testing.T) {
	c := mustParse(t)
	shallowWells := c.Layers[0].Children[0]
	if got := strings.Join(shallowWells.CRSOptions, ","); got != "EPSG:4326,EPSG:3857" {
		t.Fatalf("wells crs=%s", got)
	}
	if b := shallowWells.BoundingBoxWGS84; b == nil || b.MinX != -70 || b.MaxY != -15 {
		t.Fatalf("wells wgs84=%+v", b)
	}
	if b := shallowWells.BoundingBox; b == nil || b.SRS != "EPSG:4326" {
		t.Fatalf("wells bbox=%+v", b)
	}
	if len(shallowWells.Styles) != 2 || shallowWells.Styles[0].Name != "default" || shallowWells.Styles[1].Name != "wells" {
		t.Fatalf("wells styles=%+v", shallowWells.Styles)
	}
	if shallowWells.Styles[0].Legend != base+"/legend/default.png" {
		t.Fatalf("inherited legend=%q", shallowWells.Styles[0].Legend)
	}
	if !shallowWells.Queryable || c.Layers[0].Children[1].Queryable {
		t.Fatalf("queryable flags wrong")
	}

	roads, _ := c.Layer("survey:roads")
	if got := strings.Join(roads.CRSOptions, ","); got != "EPSG:32719" {
		t.Fatalf("roads crs=%s", got)
	}
	if b := roads.BoundingBoxWGS84; b == nil || b.MinX != -180 || b.MaxX != 180 {
		t.Fatalf("roads wgs84=%+v", b)
	}
	if len(roads.Styles) != 1 || roads.Styles[0].Title != "Roads default" || roads.Styles[0].Legend != "" {
		t.Fatalf("roads styles=%+v", roads.Styles)
	}
	if root := c.Layers[0]; len(root.Styles) != 1 || root.Styles[0].Title != "Default" {
		t.Fatalf("override leaked into parent: %+v", root.Styles)
	}
}

func TestParseCapabilities_LayerMetadata(t *testing.T) {
	c := mustParse(t)
	basemap, ok := c.Layer("survey:basemap")
	if !ok {
		t.Fatalf("basemap missing")
	}
	if !basemap.Opaque || basemap.Cascaded != 2 {
		t.Fatalf("opaque=%v cascaded=%d", basemap.Opaque, basemap.Cascaded)
	}
	if got := strings.Join(basemap.TimePositions, ","); got != "2024-01-01,2024-06-01" || basemap.DefaultTimePosition != "2024-06-01" {
		t.Fatalf("time=%s default=%q", got, basemap.DefaultTimePosition)
	}
	if got := strings.Join(basemap.Elevations, ","); got != "0,100,200" {
		t.Fatalf("elevations=%s", got)
	}
	if len(basemap.MetadataURLs) != 1 {
		t.Fatalf("metadata urls=%+v", basemap.MetadataURLs)
	}
	if m := basemap.MetadataURLs[0]; m.Type != "FGDC" || m.Format != "text/xml" || m.URL != base+"/meta/basemap.xml" {
		t.Fatalf("metadata url=%+v", m)
	}
	if len(basemap.DataURLs) != 1 || basemap.DataURLs[0].Format != "application/zip" || basemap.DataURLs[0].URL != base+"/data/basemap.zip" {
		t.Fatalf("data urls=%+v", basemap.DataURLs)
	}

	wells := c.Layers[0].Children[0]
	if wells.Opaque || wells.Cascaded != 0 || wells.TimePositions != nil || wells.MetadataURLs != nil {
		t.Fatalf("sibling picked up basemap metadata: %+v", wells)
	}
	legend := wells.Styles[0]
	if legend.LegendWidth != 20 || legend.LegendHeight != 24 || legend.LegendFormat != "image/png" {
		t.Fatalf("legend=%+v", legend)
	}
}

func TestParseCapabilities_ServiceException(t *testing.T) {
	c, err := ParseCapabilities([]byte(exceptionXML), Version)
	if c != nil {
		t.Fatalf("capabilities parsed from an exception report")
	}
	if !errors.Is(err, apperr.ErrRemoteService) {
		t.Fatalf("err=%v", err)
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Msg != "Capabilities are being rebuilt" {
		t.Fatalf("message=%v", err)
	}
}

func TestParseCapabilities_Rejects(t *testing.T) {
	if _, err := ParseCapabilities(capsDoc(base), "1.3.0"); !errors.Is(err, apperr.ErrUnsupportedVersion) {
		t.Fatalf("version err=%v", err)
	}
	if _, err := ParseCapabilities([]byte("<html><body/></html>"), Version); !errors.Is(err, apperr.ErrRemoteService) {
		t.Fatalf("html err=%v", err)
	}
	if _, err := ParseCapabilities([]byte("not xml"), Version); !errors.Is(err, apperr.ErrRemoteService) {
		t.Fatalf("garbage err=%v", err)
	}
}

func TestDescribe_QueryableLeavesOnly(t *testing.T) {
	info := Describe(mustParse(t), base)
	if info.URL != base || info.Name != "OGC:WMS" || info.Description != "Survey layers" || info.Version != "1.1.1" {
		t.Fatalf("info=%+v", info)
	}
	if len(info.Layers) != 2 || info.Layers[0].Name != "survey:wells" || info.Layers[1].Name != "survey:roads" {
		t.Fatalf("layers=%+v", info.Layers)
	}
	wells := info.Layers[0]
	if wells.Title != "Wells (nested)" || len(wells.BoundingBox) != 4 || wells.BoundingBox[0] != -180 {
		t.Fatalf("wells=%+v", wells)
	}
	if len(wells.Exports) != 3 {
		t.Fatalf("exports=%+v", wells.Exports)
	}
	png, jpeg, tiff := wells.Exports[0], wells.Exports[1], wells.Exports[2]
	if png.Name != "PNG" || !strings.Contains(png.URL, "transparent=TRUE") || !strings.Contains(png.URL, "width=800") || !strings.Contains(png.URL, "height=400&") {
		t.Fatalf("png export=%+v", png)
	}
	if jpeg.Name != "JPEG" || !strings.Contains(jpeg.URL, "transparent=FALSE") {
		t.Fatalf("jpeg export=%+v", jpeg)
	}
	if tiff.Name != "X-GEOTIFF" || tiff.Type != "application/x-geotiff" {
		t.Fatalf("tiff export=%+v", tiff)
	}
	if !strings.Contains(wells.Thumbnail, "width=400") || !strings.Contains(wells.Thumbnail, "height=200") || !strings.Contains(wells.Thumbnail, "format=image%2Fpng") {
		t.Fatalf("thumbnail=%s", wells.Thumbnail)
	}
}
