package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/geoportal/internal/wms"
)

func (a *api) wmsInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.WMS.Info(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// mapRequest reads the GetMap parameters shared by the map and feature endpoints.
// bounding_box is accepted as an alias of bbox.
func mapRequest(r *http.Request) (wms.MapRequest, error) {
	q := r.URL.Query()
	req := wms.MapRequest{
		Layers:  listParam(q.Get("layers")),
		Styles:  listParam(q.Get("styles")),
		SRS:     q.Get("srs"),
		Format:  q.Get("format"),
		BGColor: q.Get("bgcolor"),
		Time:    q.Get("time"),
	}
	if len(req.Layers) == 0 {
		return req, invalid("layers is required")
	}
	raw := q.Get("bbox")
	if raw == "" {
		raw = q.Get("bounding_box")
	}
	req.BBox = wms.WorldBBox
	if raw != "" {
		box, err := wms.ParseBBox(raw)
		if err != nil {
			return req, err
		}
		req.BBox = box
	}

	var err error
	if req.Width, err = intParam(q.Get("width"), "width", 0); err != nil {
		return req, err
	}
	if req.Height, err = intParam(q.Get("height"), "height", 0); err != nil {
		return req, err
	}
	if req.Width == 0 && req.Height == 0 {
		req.Width, req.Height, _ = wms.SizeFor(req.BBox[:], wms.ExportWidth)
	}
	if t := q.Get("transparent"); t != "" {
		req.Transparent, err = strconv.ParseBool(t)
		if err != nil {
			return req, invalid("transparent must be a boolean")
		}
	}
	return req, nil
}

func (a *api) wmsFeatures(w http.ResponseWriter, r *http.Request) {
	mr, err := mapRequest(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	req := wms.FeatureInfoRequest{
		MapRequest:  mr,
		QueryLayers: listParam(q.Get("query_layers")),
		InfoFormat:  q.Get("info_format"),
	}
	if req.X, err = intParam(q.Get("x"), "x", 0); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Y, err = intParam(q.Get("y"), "y", 0); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.FeatureCount, err = intParam(q.Get("feature_count"), "feature_count", 0); err != nil {
		a.fail(w, r, err)
		return
	}
	if f := strings.TrimSpace(q.Get("filters")); f != "" {
		if !isSafeCQL(f) {
			a.fail(w, r, invalid("filters contains unsupported characters"))
			return
		}
		req.CQLFilter = f
	}

	info, err := a.WMS.FeatureInfo(r.Context(), q.Get("url"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if info == nil {
		info = []wms.FeatureInfo{}
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *api) wmsMap(w http.ResponseWriter, r *http.Request) {
	req, err := mapRequest(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Format == "" {
		req.Format = "image/png"
	}
	res, err := a.WMS.GetMap(r.Context(), r.URL.Query().Get("url"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)
}

func (a *api) wmsLegend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	base, err := wms.BaseURL(q.Get("url"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	layer := strings.TrimSpace(q.Get("layer"))
	if layer == "" {
		a.fail(w, r, invalid("layer is required"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": wms.LegendGraphicURL(base, layer)})
}
