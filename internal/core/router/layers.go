package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/geoportal/internal/core/model"
	"github.com/mohammed-shakir/geoportal/internal/layers"
	"github.com/mohammed-shakir/geoportal/internal/publish"
)

// multipart parts beyond this are spooled to disk by net/http
const formMemory = 32 << 20

func (a *api) listLayers(w http.ResponseWriter, r *http.Request) {
	list, err := a.Catalog.List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if list == nil {
		list = []model.RegisteredLayer{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) getLayer(w http.ResponseWriter, r *http.Request) {
	l, err := a.Catalog.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (a *api) publishLayer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			a.fail(w, r, err)
			return
		}
		a.fail(w, r, invalid("multipart form: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		a.fail(w, r, invalid("form field \"file\" is required"))
		return
	}
	defer func() { _ = file.Close() }()

	layer, err := a.Publisher.Publish(r.Context(), publish.Request{
		Code:        r.FormValue("code"),
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Archive:     file,
		ContentType: hdr.Header.Get("Content-Type"),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, layer)
}

func (a *api) deleteLayer(w http.ResponseWriter, r *http.Request) {
	if err := a.Publisher.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type download struct {
	Format string `json:"format"`
	URL    string `json:"url"`
}

func (a *api) downloads(w http.ResponseWriter, r *http.Request) {
	l, err := a.Catalog.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := []download{}
	if a.WFSFormats != nil {
		formats, err := a.WFSFormats(r.Context(), l.WFSURL)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		for _, f := range formats {
			out = append(out, download{Format: f, URL: a.Catalog.DownloadURL(l.ViewName, f)})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) table(w http.ResponseWriter, r *http.Request) {
	t, err := a.Layers.Table(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *api) row(w http.ResponseWriter, r *http.Request) {
	fc, err := a.Layers.Row(r.Context(), chi.URLParam(r, "code"), chi.URLParam(r, "rowID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

type filterBody struct {
	Filters map[string]string `json:"filters"`
	BBox    string            `json:"bbox"`
}

func (a *api) filter(w http.ResponseWriter, r *http.Request) {
	var body filterBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			a.fail(w, r, invalid("filter body: %v", err))
			return
		}
	}
	raw := body.BBox
	if q := r.URL.Query().Get("bbox"); q != "" {
		raw = q
	}
	req := layers.FilterRequest{Values: body.Filters}
	if raw != "" {
		bb, err := parseBBOX(raw)
		if err != nil {
			a.fail(w, r, invalid("bbox: %v", err))
			return
		}
		req.BBox = &bb
	}
	fc, err := a.Layers.Filter(r.Context(), chi.URLParam(r, "code"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (a *api) summary(w http.ResponseWriter, r *http.Request) {
	s, err := a.Layers.Summary(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if s == nil {
		s = []layers.Summary{}
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *api) columns(w http.ResponseWriter, r *http.Request) {
	m, err := a.Layers.Columns(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type columnsBody struct {
	ColumnsStatus map[string]bool `json:"columns_status"`
}

func (a *api) setColumns(w http.ResponseWriter, r *http.Request) {
	var body columnsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.fail(w, r, invalid("columns body: %v", err))
		return
	}
	if len(body.ColumnsStatus) == 0 {
		a.fail(w, r, invalid("columns_status is empty"))
		return
	}
	m, err := a.Layers.SetColumns(r.Context(), chi.URLParam(r, "code"), body.ColumnsStatus)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
