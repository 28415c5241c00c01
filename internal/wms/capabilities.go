// Package wms reads WMS 1.1.1 capabilities, builds GetMap/GetFeatureInfo requests and decodes
// HTML feature info responses.
package wms

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/ogc"
)

// Version is the only protocol version this package speaks.
const Version = "1.1.1"

type ServiceIdentification struct {
	Name              string   `json:"name"`
	Title             string   `json:"title"`
	Abstract          string   `json:"abstract"`
	Version           string   `json:"version"`
	Keywords          []string `json:"keywords"`
	Fees              string   `json:"fees,omitempty"`
	AccessConstraints string   `json:"access_constraints,omitempty"`
}

type Provider struct {
	Name          string `json:"name"`
	URL           string `json:"url,omitempty"`
	ContactPerson string `json:"contact_person,omitempty"`
	Organization  string `json:"organization,omitempty"`
	Email         string `json:"email,omitempty"`
}

type Method struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type Operation struct {
	Name    string   `json:"name"`
	Formats []string `json:"formats"`
	Methods []Method `json:"methods"`
}

type BoundingBox struct {
	MinX float64 `json:"minx"`
	MinY float64 `json:"miny"`
	MaxX float64 `json:"maxx"`
	MaxY float64 `json:"maxy"`
	SRS  string  `json:"srs,omitempty"`
}

func (b BoundingBox) Slice() []float64 { return []float64{b.MinX, b.MinY, b.MaxX, b.MaxY} }

type Style struct {
	Name         string `json:"name"`
	Title        string `json:"title"`
	Legend       string `json:"legend,omitempty"`
	LegendWidth  int    `json:"legend_width,omitempty"`
	LegendHeight int    `json:"legend_height,omitempty"`
	LegendFormat string `json:"legend_format,omitempty"`
}

type MetadataURL struct {
	Type   string `json:"type,omitempty"`
	Format string `json:"format,omitempty"`
	URL    string `json:"url"`
}

type DataURL struct {
	Format string `json:"format,omitempty"`
	URL    string `json:"url"`
}

// Layer is one node of the capabilities layer tree. Inherited bounding boxes, CRS options
// and styles are already resolved against the parent.
type Layer struct {
	ID        string   `json:"id"`
	Index     int      `json:"index"`
	Title     string   `json:"title"`
	Abstract  string   `json:"abstract"`
	Keywords  []string `json:"keywords"`
	Queryable bool     `json:"queryable"`
	Opaque    bool     `json:"opaque"`
	// Cascaded counts how many times the layer has been retransmitted by cascading servers.
	Cascaded int `json:"cascaded"`

	BoundingBox      *BoundingBox `json:"bounding_box,omitempty"`
	BoundingBoxWGS84 *BoundingBox `json:"bounding_box_wgs84,omitempty"`
	CRSOptions       []string     `json:"crs_options"`
	Styles           []Style      `json:"styles"`

	TimePositions       []string      `json:"time_positions,omitempty"`
	DefaultTimePosition string        `json:"default_time_position,omitempty"`
	Elevations          []string      `json:"elevations,omitempty"`
	MetadataURLs        []MetadataURL `json:"metadata_urls,omitempty"`
	DataURLs            []DataURL     `json:"data_urls,omitempty"`

	Children []*Layer `json:"children,omitempty"`
	Parent   *Layer   `json:"-"`
}

func (l *Layer) IsLeaf() bool { return len(l.Children) == 0 }

type Capabilities struct {
	Version          string                `json:"version"`
	UpdateSequence   string                `json:"update_sequence,omitempty"`
	Service          ServiceIdentification `json:"service"`
	Provider         Provider              `json:"provider"`
	Operations       []Operation           `json:"operations"`
	ExceptionFormats []string              `json:"exception_formats"`
	Layers           []*Layer              `json:"layers"`
	Warnings         []string              `json:"warnings,omitempty"`

	contents map[string]*Layer
	order    []string
}

// Layer looks up a named layer. When the tree repeats a name the deepest, latest entry wins.
func (c *Capabilities) Layer(id string) (*Layer, bool) {
	l, ok := c.contents[id]
	return l, ok
}

// Contents lists named layers in first-seen order.
func (c *Capabilities) Contents() []*Layer {
	out := make([]*Layer, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.contents[id])
	}
	return out
}

func (c *Capabilities) Operation(name string) (Operation, bool) {
	for _, op := range c.Operations {
		if op.Name == name {
			return op, true
		}
	}
	return Operation{}, false
}

// OperationURL returns the advertised endpoint of name for the HTTP method, "" if none.
func (c *Capabilities) OperationURL(name, method string) string {
	op, ok := c.Operation(name)
	if !ok {
		return ""
	}
	for _, m := range op.Methods {
		if strings.EqualFold(m.Type, method) {
			return m.URL
		}
	}
	return ""
}

func (c *Capabilities) OperationNames() []string {
	out := make([]string, len(c.Operations))
	for i, op := range c.Operations {
		out[i] = op.Name
	}
	return out
}

// ParseCapabilities builds the capabilities model of a WMS 1.1.1 document.
func ParseCapabilities(data []byte, version string) (*Capabilities, error) {
	if version != Version {
		return nil, apperr.New(apperr.KindUnsupportedVersion, "wms version %q is not supported, use %s", version, Version)
	}
	root, err := ogc.Parse(data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRemoteService, err, "capabilities document")
	}
	if msg, ok := ogc.ExceptionText(root); ok {
		return nil, apperr.New(apperr.KindRemoteService, "%s", msg)
	}
	capability := ogc.Child(root, "Capability")
	if capability == nil {
		return nil, apperr.New(apperr.KindRemoteService, "%s is not a WMS capabilities document", root.Tag)
	}

	c := &Capabilities{
		Version:        ogc.Attr(root, "version"),
		UpdateSequence: ogc.Attr(root, "updateSequence"),
		contents:       map[string]*Layer{},
	}
	if c.Version == "" {
		c.Version = version
	}
	svc := ogc.Child(root, "Service")
	c.Service = parseService(svc, c.Version)
	c.Provider = parseProvider(svc)
	if req := ogc.Child(capability, "Request"); req != nil {
		for _, el := range req.ChildElements() {
			c.Operations = append(c.Operations, parseOperation(el))
		}
	}
	for _, f := range ogc.FindAll(capability, "Exception/Format") {
		c.ExceptionFormats = append(c.ExceptionFormats, ogc.Text(f))
	}
	c.Layers = c.gather(capability, nil)
	return c, nil
}

func (c *Capabilities) gather(parentEl *etree.Element, parent *Layer) []*Layer {
	var layers []*Layer
	for i, el := range ogc.Children(parentEl, "Layer") {
		l := parseLayer(el, parent, i+1)
		if l.ID != "" {
			if _, dup := c.contents[l.ID]; dup {
				c.Warnings = append(c.Warnings, fmt.Sprintf("layer %q already exists, using the later entry", l.ID))
			} else {
				c.order = append(c.order, l.ID)
			}
			c.contents[l.ID] = l
		}
		layers = append(layers, l)
		l.Children = c.gather(el, l)
	}
	return layers
}

func parseService(el *etree.Element, version string) ServiceIdentification {
	return ServiceIdentification{
		Name:              ogc.ChildText(el, "Name"),
		Title:             ogc.ChildText(el, "Title"),
		Abstract:          ogc.ChildText(el, "Abstract"),
		Version:           version,
		Keywords:          keywords(el),
		Fees:              ogc.ChildText(el, "Fees"),
		AccessConstraints: ogc.ChildText(el, "AccessConstraints"),
	}
}

func parseProvider(el *etree.Element) Provider {
	contact := ogc.Child(el, "ContactInformation")
	p := Provider{
		URL:           ogc.Attr(ogc.Child(el, "OnlineResource"), "href"),
		ContactPerson: ogc.FindText(contact, "ContactPersonPrimary/ContactPerson"),
		Organization:  ogc.FindText(contact, "ContactPersonPrimary/ContactOrganization"),
		Email:         ogc.ChildText(contact, "ContactElectronicMailAddress"),
	}
	p.Name = p.Organization
	if p.Name == "" {
		p.Name = ogc.ChildText(el, "Title")
	}
	return p
}

func parseOperation(el *etree.Element) Operation {
	op := Operation{Name: el.Tag, Formats: []string{}, Methods: []Method{}}
	for _, f := range ogc.Children(el, "Format") {
		if t := ogc.Text(f); t != "" {
			op.Formats = append(op.Formats, t)
		}
	}
	for _, dcp := range ogc.Children(el, "DCPType") {
		httpEl := ogc.Child(dcp, "HTTP")
		if httpEl == nil {
			continue
		}
		for _, m := range httpEl.ChildElements() {
			op.Methods = append(op.Methods, Method{Type: m.Tag, URL: ogc.Attr(ogc.Child(m, "OnlineResource"), "href")})
		}
	}
	return op
}

func parseLayer(el *etree.Element, parent *Layer, index int) *Layer {
	l := &Layer{
		ID:        ogc.ChildText(el, "Name"),
		Index:     index,
		Title:     ogc.ChildText(el, "Title"),
		Abstract:  ogc.ChildText(el, "Abstract"),
		Keywords:  keywords(el),
		Queryable: truthy(ogc.Attr(el, "queryable")),
		Opaque:    truthy(ogc.Attr(el, "opaque")),
		Parent:    parent,
	}
	l.Cascaded, _ = strconv.Atoi(strings.TrimSpace(ogc.Attr(el, "cascaded")))

	if b, ok := parseBox(ogc.Child(el, "BoundingBox")); ok {
		l.BoundingBox = &b
	} else if parent != nil {
		l.BoundingBox = parent.BoundingBox
	}
	if b, ok := parseBox(ogc.Child(el, "LatLonBoundingBox")); ok {
		l.BoundingBoxWGS84 = &b
	} else if parent != nil {
		l.BoundingBoxWGS84 = parent.BoundingBoxWGS84
	}

	// some servers put a whitespace separated list into a single SRS element
	seen := map[string]struct{}{}
	for _, s := range ogc.Children(el, "SRS") {
		for _, code := range strings.Fields(ogc.Text(s)) {
			if _, ok := seen[code]; !ok {
				seen[code] = struct{}{}
				l.CRSOptions = append(l.CRSOptions, code)
			}
		}
	}
	if len(l.CRSOptions) == 0 && parent != nil {
		l.CRSOptions = parent.CRSOptions
	}

	if parent != nil {
		l.Styles = append(l.Styles, parent.Styles...)
	}
	for _, s := range ogc.Children(el, "Style") {
		legend := ogc.Child(s, "LegendURL")
		st := Style{
			Name:         ogc.ChildText(s, "Name"),
			Title:        ogc.ChildText(s, "Title"),
			Legend:       ogc.Attr(ogc.Child(legend, "OnlineResource"), "href"),
			LegendFormat: ogc.ChildText(legend, "Format"),
		}
		st.LegendWidth, _ = strconv.Atoi(ogc.Attr(legend, "width"))
		st.LegendHeight, _ = strconv.Atoi(ogc.Attr(legend, "height"))
		l.Styles = mergeStyle(l.Styles, st)
	}

	parseExtents(el, l)
	for _, m := range ogc.Children(el, "MetadataURL") {
		l.MetadataURLs = append(l.MetadataURLs, MetadataURL{
			Type:   ogc.Attr(m, "type"),
			Format: ogc.ChildText(m, "Format"),
			URL:    ogc.Attr(ogc.Child(m, "OnlineResource"), "href"),
		})
	}
	for _, d := range ogc.Children(el, "DataURL") {
		l.DataURLs = append(l.DataURLs, DataURL{
			Format: ogc.ChildText(d, "Format"),
			URL:    ogc.Attr(ogc.Child(d, "OnlineResource"), "href"),
		})
	}
	return l
}

// parseExtents reads the 1.1.1 time and elevation Extent values. A layer without its own
// Extent inherits the parent's.
func parseExtents(el *etree.Element, l *Layer) {
	for _, ext := range ogc.Children(el, "Extent") {
		switch strings.ToLower(ogc.Attr(ext, "name")) {
		case "time":
			l.TimePositions = splitExtent(ogc.Text(ext))
			l.DefaultTimePosition = ogc.Attr(ext, "default")
		case "elevation":
			l.Elevations = splitExtent(ogc.Text(ext))
		}
	}
	if p := l.Parent; p != nil {
		if l.TimePositions == nil {
			l.TimePositions, l.DefaultTimePosition = p.TimePositions, p.DefaultTimePosition
		}
		if l.Elevations == nil {
			l.Elevations = p.Elevations
		}
	}
}

func splitExtent(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// mergeStyle replaces a same-named style in place or appends.
func mergeStyle(styles []Style, st Style) []Style {
	for i := range styles {
		if styles[i].Name == st.Name {
			styles[i] = st
			return styles
		}
	}
	return append(styles, st)
}

func parseBox(el *etree.Element) (BoundingBox, bool) {
	if el == nil {
		return BoundingBox{}, false
	}
	var v [4]float64
	for i, k := range []string{"minx", "miny", "maxx", "maxy"} {
		f, err := strconv.ParseFloat(strings.TrimSpace(ogc.Attr(el, k)), 64)
		if err != nil {
			return BoundingBox{}, false
		}
		v[i] = f
	}
	return BoundingBox{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3], SRS: ogc.Attr(el, "SRS")}, true
}

func keywords(el *etree.Element) []string {
	out := []string{}
	for _, k := range ogc.FindAll(el, "KeywordList/Keyword") {
		if t := ogc.Text(k); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true":
		return true
	}
	return false
}
