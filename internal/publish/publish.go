// Package publish sequences archive validation, loading and the store writes that turn an
// uploaded shapefile bundle into a registered layer.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/geoportal/internal/archive"
	"github.com/mohammed-shakir/geoportal/internal/catalog"
	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/model"
	"github.com/mohammed-shakir/geoportal/internal/core/observability"
	"github.com/mohammed-shakir/geoportal/internal/events"
	"github.com/mohammed-shakir/geoportal/internal/keys"
	"github.com/mohammed-shakir/geoportal/internal/logger"
	"github.com/mohammed-shakir/geoportal/internal/projector"
	"github.com/mohammed-shakir/geoportal/internal/relational"
	"github.com/mohammed-shakir/geoportal/internal/snapshot"
)

type State string

const (
	StateValidating           State = "validating"
	StateLoading              State = "loading"
	StatePublishingRelational State = "publishing_relational"
	StateProjectingDocument   State = "projecting_document"
	StateRegistered           State = "registered"
	StateRejected             State = "rejected"
)

type ArchiveValidator interface {
	Validate(ctx context.Context, r io.Reader, contentType string) (*archive.Archive, error)
}

type Loader interface {
	Load(ctx context.Context, path string) (*model.FeatureCollection, error)
}

type RelationalPublisher interface {
	Publish(ctx context.Context, code string, fc *model.FeatureCollection) (relational.Result, error)
	Drop(ctx context.Context, code string) error
}

type DocumentProjector interface {
	Project(ctx context.Context, code string, fc *model.FeatureCollection, aliases map[string]string) (projector.Result, error)
}

// DocumentCleaner removes a layer's document side on delete and after a rejected publish.
type DocumentCleaner interface {
	DropCollection(ctx context.Context, collection string) error
	DeleteColumns(ctx context.Context, code string) error
}

type Catalog interface {
	Exists(ctx context.Context, code string) (bool, error)
	Reserve(ctx context.Context, code, name, description string) (catalog.Reservation, error)
	Activate(ctx context.Context, id string, a catalog.Activation) error
	Reject(ctx context.Context, id, reason string) error
	MarkDeleted(ctx context.Context, code string) error
	Get(ctx context.Context, code string) (model.RegisteredLayer, error)
	Latest(ctx context.Context, code string) (model.RegisteredLayer, catalog.Status, error)
}

type Deps struct {
	Archive    ArchiveValidator
	Loader     Loader
	Relational RelationalPublisher
	Documents  DocumentProjector
	Cleaner    DocumentCleaner
	Catalog    Catalog
	Events     events.Emitter
	Logger     *slog.Logger
}

type Options struct {
	// ExportDir receives a FlatGeobuf snapshot per layer; empty disables snapshots.
	ExportDir string
}

type Request struct {
	Code        string
	Name        string
	Description string
	Archive     io.Reader
	ContentType string
}

type Orchestrator struct {
	d    Deps
	opts Options
	log  *slog.Logger
}

func New(d Deps, opts Options) *Orchestrator {
	if d.Events == nil {
		d.Events = events.Noop{}
	}
	l := d.Logger
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{d: d, opts: opts, log: l}
}

// StageError records the state a publish attempt was rejected in.
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.State, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// RejectedIn returns the state a failed Publish stopped in, "" if err did not come from one.
func RejectedIn(err error) State {
	var se *StageError
	if errors.As(err, &se) {
		return se.State
	}
	return ""
}

// Publish runs Validating, Loading, PublishingRelational and ProjectingDocument in order and
// registers the layer. A code already staged or active is refused before anything is written.
// A failure once store writes began drops the relational and document artifacts before the
// code is released; whatever that cleanup could not remove is left for Delete.
func (o *Orchestrator) Publish(ctx context.Context, req Request) (model.RegisteredLayer, error) {
	if err := keys.ValidCode(req.Code); err != nil {
		return model.RegisteredLayer{}, apperr.Wrap(apperr.KindInvalidRequest, err, "publish")
	}
	jobID := uuid.NewString()
	ctx = logger.WithLayerCode(logger.WithJobID(ctx, jobID), req.Code)
	start := time.Now()

	exists, err := o.d.Catalog.Exists(ctx, req.Code)
	if err != nil {
		return model.RegisteredLayer{}, apperr.StorageWrite(apperr.StageCatalog, err, "check code")
	}
	if exists {
		observability.IncPublishResult(string(StateRejected), apperr.KindAlreadyExists.String())
		return model.RegisteredLayer{}, apperr.New(apperr.KindAlreadyExists, "layer code %q already exists", req.Code)
	}
	res, err := o.d.Catalog.Reserve(ctx, req.Code, req.Name, req.Description)
	if err != nil {
		observability.IncPublishResult(string(StateRejected), apperr.KindOf(err).String())
		return model.RegisteredLayer{}, err
	}

	var (
		arc  *archive.Archive
		fc   *model.FeatureCollection
		rel  relational.Result
		docs projector.Result
	)
	defer func() {
		if arc != nil {
			if err := arc.Cleanup(); err != nil {
				o.log.WarnContext(ctx, "archive cleanup failed", "err", err)
			}
		}
	}()

	steps := []struct {
		state State
		run   func(context.Context) error
	}{
		{StateValidating, func(ctx context.Context) (err error) {
			arc, err = o.d.Archive.Validate(ctx, req.Archive, req.ContentType)
			return err
		}},
		{StateLoading, func(ctx context.Context) (err error) {
			fc, err = o.d.Loader.Load(ctx, arc.ShapefilePath)
			return err
		}},
		{StatePublishingRelational, func(ctx context.Context) (err error) {
			rel, err = o.d.Relational.Publish(ctx, req.Code, fc)
			return err
		}},
		{StateProjectingDocument, func(ctx context.Context) (err error) {
			docs, err = o.d.Documents.Project(ctx, req.Code, fc, rel.Aliases)
			return err
		}},
	}
	for _, s := range steps {
		if err := o.step(ctx, s.state, s.run); err != nil {
			return model.RegisteredLayer{}, o.reject(ctx, res, s.state, err)
		}
	}

	o.writeSnapshot(ctx, req.Code, fc)

	err = o.d.Catalog.Activate(ctx, res.ID, catalog.Activation{
		Schema:       rel.Schema,
		Table:        rel.Table,
		View:         rel.View,
		Collection:   docs.Collection,
		FeatureCount: rel.Rows,
	})
	if err != nil {
		return model.RegisteredLayer{}, o.reject(ctx, res, StateRegistered, apperr.StorageWrite(apperr.StageCatalog, err, "activate"))
	}
	layer, err := o.d.Catalog.Get(ctx, req.Code)
	if err != nil {
		return model.RegisteredLayer{}, fmt.Errorf("read registered layer: %w", err)
	}

	observability.IncPublishResult(string(StateRegistered), "")
	o.log.InfoContext(ctx, "layer registered", "state", StateRegistered, "rows", rel.Rows, "dur", time.Since(start))

	ev := events.New(events.LayerRegistered, req.Code)
	ev.JobID = jobID
	ev.View = rel.View
	ev.Collection = docs.Collection
	ev.FeatureCount = rel.Rows
	o.d.Events.Emit(ctx, ev)
	return layer, nil
}

func (o *Orchestrator) step(ctx context.Context, state State, run func(context.Context) error) error {
	o.log.InfoContext(ctx, "publish state", "state", state)
	t0 := time.Now()
	err := run(ctx)
	observability.ObservePublishStage(string(state), err, time.Since(t0).Seconds())
	return err
}

func (o *Orchestrator) reject(ctx context.Context, res catalog.Reservation, state State, err error) error {
	kind := apperr.KindOf(err)
	o.log.WarnContext(ctx, "layer rejected", "state", StateRejected, "failed_in", state, "kind", kind.String(), "err", err)
	observability.IncPublishResult(string(StateRejected), kind.String())

	// the request context may already be cancelled; cleanup and release must still run
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	switch state {
	case StatePublishingRelational, StateProjectingDocument, StateRegistered:
		o.compensate(cctx, res.Code)
	}
	if rerr := o.d.Catalog.Reject(cctx, res.ID, err.Error()); rerr != nil {
		o.log.ErrorContext(ctx, "release reservation failed", "err", rerr)
	}

	ev := events.New(events.LayerRejected, res.Code)
	ev.Stage = string(state)
	if st := apperr.StageOf(err); st != "" {
		ev.Stage = string(st)
	}
	ev.Kind = kind.String()
	ev.Reason = err.Error()
	o.d.Events.Emit(ctx, ev)

	return &StageError{State: state, Err: err}
}

// compensate removes what a failed publish may have written. The reservation is still staged
// while it runs, so no concurrent publish of the same code can be affected.
func (o *Orchestrator) compensate(ctx context.Context, code string) {
	if err := o.d.Relational.Drop(ctx, code); err != nil {
		o.log.ErrorContext(ctx, "compensation: drop relational failed", "err", err)
	}
	if err := o.d.Cleaner.DropCollection(ctx, keys.Collection(code)); err != nil {
		o.log.ErrorContext(ctx, "compensation: drop documents failed", "err", err)
	}
	if err := o.d.Cleaner.DeleteColumns(ctx, code); err != nil {
		o.log.ErrorContext(ctx, "compensation: delete columns failed", "err", err)
	}
	o.removeSnapshot(ctx, code)
}

func (o *Orchestrator) removeSnapshot(ctx context.Context, code string) {
	if o.opts.ExportDir == "" {
		return
	}
	if err := os.Remove(filepath.Join(o.opts.ExportDir, code+".fgb")); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.log.WarnContext(ctx, "snapshot removal failed", "err", err)
	}
}

func (o *Orchestrator) writeSnapshot(ctx context.Context, code string, fc *model.FeatureCollection) {
	if o.opts.ExportDir == "" {
		return
	}
	path, err := snapshot.WriteFile(o.opts.ExportDir, code, fc)
	if err != nil {
		o.log.WarnContext(ctx, "snapshot failed", "err", err)
		return
	}
	o.log.DebugContext(ctx, "snapshot written", "path", path)
}

// Delete removes every artifact of a layer and retires its catalog entries. Rejected layers
// and reservations left staged by an interrupted publish can be deleted too, which clears
// anything a failed cleanup left behind.
func (o *Orchestrator) Delete(ctx context.Context, code string) error {
	ctx = logger.WithLayerCode(ctx, code)
	layer, status, err := o.d.Catalog.Latest(ctx, code)
	if err != nil {
		return err
	}
	if err := o.d.Relational.Drop(ctx, code); err != nil {
		return err
	}
	collection := layer.DocumentCollection
	if collection == "" {
		collection = keys.Collection(code)
	}
	if err := o.d.Cleaner.DropCollection(ctx, collection); err != nil {
		return apperr.StorageWrite(apperr.StageDocument, err, "drop %s", collection)
	}
	if err := o.d.Cleaner.DeleteColumns(ctx, code); err != nil {
		return apperr.StorageWrite(apperr.StageDocument, err, "delete columns for %s", code)
	}
	o.removeSnapshot(ctx, code)
	if err := o.d.Catalog.MarkDeleted(ctx, code); err != nil {
		return err
	}

	o.log.InfoContext(ctx, "layer deleted", "status", status)
	o.d.Events.Emit(ctx, events.New(events.LayerDeleted, code))
	return nil
}
