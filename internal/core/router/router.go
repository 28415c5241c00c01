package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/geoportal/internal/core/middleware"
	"github.com/mohammed-shakir/geoportal/internal/core/model"
	"github.com/mohammed-shakir/geoportal/internal/core/ogc"
	"github.com/mohammed-shakir/geoportal/internal/layers"
	"github.com/mohammed-shakir/geoportal/internal/publish"
	"github.com/mohammed-shakir/geoportal/internal/wms"
)

type Publisher interface {
	Publish(ctx context.Context, req publish.Request) (model.RegisteredLayer, error)
	Delete(ctx context.Context, code string) error
}

type Catalog interface {
	Get(ctx context.Context, code string) (model.RegisteredLayer, error)
	List(ctx context.Context) ([]model.RegisteredLayer, error)
	DownloadURL(view, outputFormat string) string
}

type LayerQueries interface {
	Table(ctx context.Context, code string) (layers.Table, error)
	Row(ctx context.Context, code, rowID string) (*geojson.FeatureCollection, error)
	Filter(ctx context.Context, code string, req layers.FilterRequest) (*geojson.FeatureCollection, error)
	Summary(ctx context.Context, code string) ([]layers.Summary, error)
	Columns(ctx context.Context, code string) (model.ColumnMetadata, error)
	SetColumns(ctx context.Context, code string, status map[string]bool) (model.ColumnMetadata, error)
}

type MapService interface {
	Info(ctx context.Context, serviceURL string) (wms.ServiceInfo, error)
	FeatureInfo(ctx context.Context, serviceURL string, r wms.FeatureInfoRequest) ([]wms.FeatureInfo, error)
	GetMap(ctx context.Context, serviceURL string, r wms.MapRequest) (ogc.Response, error)
}

// FormatLister returns the GetFeature output formats of a WFS endpoint.
type FormatLister func(ctx context.Context, wfsURL string) ([]string, error)

type Deps struct {
	Publisher  Publisher
	Catalog    Catalog
	Layers     LayerQueries
	WMS        MapService
	WFSFormats FormatLister
	Logger     *slog.Logger

	// MaxUploadBytes caps the multipart body of a publish request.
	MaxUploadBytes int64
	Liveness       http.HandlerFunc
	Readiness      http.HandlerFunc
	Metrics        http.Handler
}

type api struct {
	Deps
}

// New mounts the HTTP API.
func New(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 256 << 20
	}
	a := &api{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.Recover(d.Logger))
	r.Use(middleware.Logging(d.Logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())

	if d.Liveness != nil {
		r.Get("/healthz", d.Liveness)
	}
	if d.Readiness != nil {
		r.Get("/readyz", d.Readiness)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/api/layers", func(r chi.Router) {
		r.Get("/", a.listLayers)
		r.Post("/", a.publishLayer)
		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", a.getLayer)
			r.Delete("/", a.deleteLayer)
			r.Get("/downloads", a.downloads)
			r.Get("/table", a.table)
			r.Get("/rows/{rowID}", a.row)
			r.Post("/filter", a.filter)
			r.Get("/summary", a.summary)
			r.Get("/columns", a.columns)
			r.Patch("/columns", a.setColumns)
		})
	})
	r.Route("/api/wms", func(r chi.Router) {
		r.Get("/info", a.wmsInfo)
		r.Get("/features", a.wmsFeatures)
		r.Get("/map", a.wmsMap)
		r.Get("/legend", a.wmsLegend)
	})
	return r
}
