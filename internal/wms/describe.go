package wms

type StyleInfo struct {
	Title  string `json:"title"`
	Legend string `json:"legend"`
}

type LayerInfo struct {
	Name        string      `json:"name"`
	Title       string      `json:"title"`
	Abstract    string      `json:"abstract"`
	Keywords    []string    `json:"keywords"`
	BoundingBox []float64   `json:"bounding_box"`
	Styles      []StyleInfo `json:"styles"`
	Exports     []Export    `json:"exports"`
	Thumbnail   string      `json:"thumbnail"`
}

type ServiceInfo struct {
	URL         string      `json:"url"`
	Name        string      `json:"name"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Version     string      `json:"version"`
	Keywords    []string    `json:"keywords"`
	Operations  []string    `json:"operations"`
	Layers      []LayerInfo `json:"layers"`
}

// Describe summarises a capabilities document for clients: only queryable leaf layers are
// listed, each with its styles, export URLs for every GetMap format and a thumbnail.
func Describe(c *Capabilities, baseURL string) ServiceInfo {
	var getMapFormats []string
	if op, ok := c.Operation("GetMap"); ok {
		getMapFormats = op.Formats
	}

	info := ServiceInfo{
		URL:         baseURL,
		Name:        c.Service.Name,
		Title:       c.Service.Title,
		Description: c.Service.Abstract,
		Version:     c.Version,
		Keywords:    c.Service.Keywords,
		Operations:  c.OperationNames(),
		Layers:      []LayerInfo{},
	}
	for _, l := range c.Contents() {
		if !l.Queryable || !l.IsLeaf() {
			continue
		}
		bbox := []float64{}
		if l.BoundingBoxWGS84 != nil {
			bbox = l.BoundingBoxWGS84.Slice()
		}
		styles := make([]StyleInfo, 0, len(l.Styles))
		for _, s := range l.Styles {
			styles = append(styles, StyleInfo{Title: s.Title, Legend: s.Legend})
		}
		info.Layers = append(info.Layers, LayerInfo{
			Name:        l.ID,
			Title:       l.Title,
			Abstract:    l.Abstract,
			Keywords:    l.Keywords,
			BoundingBox: bbox,
			Styles:      styles,
			Exports:     ExportURLs(getMapFormats, baseURL, l.ID, bbox),
			Thumbnail:   ThumbnailURL(baseURL, l.ID, bbox),
		})
	}
	return info
}
