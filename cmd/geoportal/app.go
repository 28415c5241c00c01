package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mohammed-shakir/geoportal/internal/archive"
	"github.com/mohammed-shakir/geoportal/internal/catalog"
	"github.com/mohammed-shakir/geoportal/internal/core/config"
	"github.com/mohammed-shakir/geoportal/internal/core/health"
	"github.com/mohammed-shakir/geoportal/internal/core/httpclient"
	"github.com/mohammed-shakir/geoportal/internal/core/ogc"
	"github.com/mohammed-shakir/geoportal/internal/core/router"
	"github.com/mohammed-shakir/geoportal/internal/docstore"
	"github.com/mohammed-shakir/geoportal/internal/docstore/mongostore"
	"github.com/mohammed-shakir/geoportal/internal/docstore/redisstore"
	"github.com/mohammed-shakir/geoportal/internal/events"
	"github.com/mohammed-shakir/geoportal/internal/layers"
	h3mapper "github.com/mohammed-shakir/geoportal/internal/mapper/h3"
	"github.com/mohammed-shakir/geoportal/internal/metrics"
	"github.com/mohammed-shakir/geoportal/internal/projector"
	"github.com/mohammed-shakir/geoportal/internal/publish"
	"github.com/mohammed-shakir/geoportal/internal/relational"
	"github.com/mohammed-shakir/geoportal/internal/shapefile"
	"github.com/mohammed-shakir/geoportal/internal/wms"
)

// app holds every long-lived dependency of the service.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	db      *sql.DB
	docs    docstore.Store
	events  events.Emitter
	catalog *catalog.Catalog
	orch    *publish.Orchestrator
	layers  *layers.Service
	wms     *wms.Client
	wfs     *http.Client
	metrics *metrics.Provider
}

func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	a.metrics = metrics.Init(metrics.Config{
		Build:   metrics.BuildInfo{Version: Version, Revision: Revision, BuildDate: BuildDate},
		Runtime: true,
	})

	db, dialect, err := relational.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.catalog = catalog.New(db, dialect, catalog.Options{
		GeoServerURL: cfg.GeoServerURL,
		Workspace:    cfg.GeoServerWorkspace,
	}, log)
	if err := a.catalog.Migrate(ctx); err != nil {
		return nil, err
	}

	if a.docs, err = openDocStore(ctx, cfg.DocStore); err != nil {
		return nil, err
	}

	a.events = events.Noop{}
	if cfg.Events.Enabled {
		p, err := events.NewPublisher(cfg.Events.BrokerList(), cfg.Events.Topic, cfg.Events.QueueSize, log)
		if err != nil {
			return nil, err
		}
		a.events = p
	}

	m := h3mapper.New()
	a.orch = publish.New(publish.Deps{
		Archive:    archive.New(cfg.StoragePath, cfg.MaxUploadBytes, log),
		Loader:     shapefile.NewLoader(shapefile.Options{DefaultSRID: cfg.DefaultSourceSRID, Logger: log}),
		Relational: relational.New(db, dialect, log),
		Documents:  projector.New(a.docs, projector.Options{H3Res: cfg.H3Res, Mapper: m, Logger: log}),
		Cleaner:    a.docs,
		Catalog:    a.catalog,
		Events:     a.events,
		Logger:     log,
	}, publish.Options{ExportDir: cfg.ExportDir})
	a.layers = layers.New(a.catalog, a.docs, m, cfg.H3Res)

	a.wms = wms.NewClient(wms.Options{Timeout: cfg.WMSTimeout, Version: cfg.WMSVersion, Logger: log})
	a.wfs = httpclient.NewOutbound(httpclient.Options{Timeout: cfg.WMSTimeout})

	ok = true
	return a, nil
}

func openDocStore(ctx context.Context, c config.DocStoreCfg) (docstore.Store, error) {
	switch c.Driver {
	case "redis":
		return redisstore.New(ctx, c.RedisAddr,
			redisstore.WithReadTimeout(c.OpTimeout),
			redisstore.WithWriteTimeout(c.OpTimeout))
	case "mongo", "mongodb":
		return mongostore.Connect(ctx, c.MongoURI, c.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown document store %q", c.Driver)
	}
}

func (a *app) handler() http.Handler {
	checks := map[string]health.Check{
		"database": a.metrics.Track("database", a.db.PingContext),
		"docstore": a.metrics.Track("docstore", a.docs.Ping),
	}
	return router.New(router.Deps{
		Publisher: a.orch,
		Catalog:   a.catalog,
		Layers:    a.layers,
		WMS:       a.wms,
		WFSFormats: func(ctx context.Context, wfsURL string) ([]string, error) {
			return ogc.FetchOutputFormats(ctx, a.wfs, wfsURL)
		},
		Logger:         a.log,
		MaxUploadBytes: a.cfg.MaxUploadBytes,
		Liveness:       health.Liveness(),
		Readiness:      health.Readiness(checks, 2*time.Second),
		Metrics:        a.metrics.Handler(),
	})
}

func (a *app) Close() error {
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.docs != nil {
		errs = append(errs, a.docs.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
