package wms

import (
	_ "embed"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ExportWidth    = 800
	ThumbnailWidth = 400
)

//go:embed formats.yaml
var formatsYAML []byte

type formatTable struct {
	Labels      map[string]string `yaml:"labels"`
	Transparent []string          `yaml:"transparent"`
}

var formats = mustFormats(formatsYAML)

func mustFormats(b []byte) formatTable {
	var t formatTable
	if err := yaml.Unmarshal(b, &t); err != nil {
		panic(fmt.Sprintf("wms: formats.yaml: %v", err))
	}
	return t
}

// FormatLabel names a MIME type for display.
func FormatLabel(mime string) string {
	if l, ok := formats.Labels[mime]; ok {
		return l
	}
	parts := strings.Split(strings.ToUpper(mime), "/")
	return parts[len(parts)-1]
}

func SupportsTransparency(mime string) bool {
	for _, f := range formats.Transparent {
		if f == mime {
			return true
		}
	}
	return false
}

type Export struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// ExportURLs builds one GetMap URL per format for the whole layer extent.
func ExportURLs(formatList []string, baseURL, layer string, bbox []float64) []Export {
	w, h, box := SizeFor(bbox, ExportWidth)
	out := make([]Export, 0, len(formatList))
	for _, f := range formatList {
		out = append(out, Export{
			Name: FormatLabel(f),
			URL:  mapURL(baseURL, layer, f, box, w, h, SupportsTransparency(f)),
			Type: f,
		})
	}
	return out
}

// ThumbnailURL is a transparent PNG preview of the layer extent.
func ThumbnailURL(baseURL, layer string, bbox []float64) string {
	w, h, box := SizeFor(bbox, ThumbnailWidth)
	return mapURL(baseURL, layer, "image/png", box, w, h, true)
}

// LegendURL points at the GetLegendGraphic PNG of a layer served under a GeoServer workspace URL.
func LegendURL(serviceURL, layer string) string {
	return LegendGraphicURL(strings.TrimRight(serviceURL, "/")+"/wms", layer)
}

// LegendGraphicURL builds a GetLegendGraphic request against a WMS endpoint.
func LegendGraphicURL(endpoint, layer string) string {
	v := url.Values{}
	v.Set("service", "WMS")
	v.Set("version", Version)
	v.Set("request", "GetLegendGraphic")
	v.Set("format", "image/png")
	v.Set("layer", layer)
	return RequestURL(endpoint, v)
}

func mapURL(baseURL, layer, format string, box [4]float64, w, h int, transparent bool) string {
	v, err := BuildGetMap(MapRequest{
		Layers:      []string{layer},
		BBox:        box,
		Width:       w,
		Height:      max(h, 1),
		Format:      format,
		Transparent: transparent,
	})
	if err != nil {
		return ""
	}
	return RequestURL(baseURL, v)
}
