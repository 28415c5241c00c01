// Package apperr defines the error taxonomy shared by the publishing pipeline and the WMS client.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidFormat
	KindEmptyDataset
	KindMissingGeometry
	KindUnknownProjection
	KindAlreadyExists
	KindStorageWrite
	KindUnsupportedVersion
	KindRemoteService
	KindInvalidRequest
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInvalidFormat:
		return "invalid_format"
	case KindEmptyDataset:
		return "empty_dataset"
	case KindMissingGeometry:
		return "missing_geometry"
	case KindUnknownProjection:
		return "unknown_projection"
	case KindAlreadyExists:
		return "already_exists"
	case KindStorageWrite:
		return "storage_write"
	case KindUnsupportedVersion:
		return "unsupported_version"
	case KindRemoteService:
		return "remote_service"
	case KindInvalidRequest:
		return "invalid_request"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Stage names the store a StorageWrite error came from.
type Stage string

const (
	StageRelational Stage = "relational"
	StageDocument   Stage = "document"
	StageCatalog    Stage = "catalog"
)

type Error struct {
	Kind  Kind
	Stage Stage
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.Stage != "" {
		prefix += "(" + string(e.Stage) + ")"
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	case e.Msg != "":
		return prefix + ": " + e.Msg
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return prefix
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, and on Stage when the target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Stage == "" || t.Stage == e.Stage
}

var (
	ErrInvalidFormat      = &Error{Kind: KindInvalidFormat}
	ErrEmptyDataset       = &Error{Kind: KindEmptyDataset}
	ErrMissingGeometry    = &Error{Kind: KindMissingGeometry}
	ErrUnknownProjection  = &Error{Kind: KindUnknownProjection}
	ErrAlreadyExists      = &Error{Kind: KindAlreadyExists}
	ErrStorageWrite       = &Error{Kind: KindStorageWrite}
	ErrRelationalWrite    = &Error{Kind: KindStorageWrite, Stage: StageRelational}
	ErrDocumentWrite      = &Error{Kind: KindStorageWrite, Stage: StageDocument}
	ErrCatalogWrite       = &Error{Kind: KindStorageWrite, Stage: StageCatalog}
	ErrUnsupportedVersion = &Error{Kind: KindUnsupportedVersion}
	ErrRemoteService      = &Error{Kind: KindRemoteService}
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest}
	ErrNotFound           = &Error{Kind: KindNotFound}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// StorageWrite tags err as a write failure in the given store.
func StorageWrite(stage Stage, err error, format string, args ...any) *Error {
	return &Error{Kind: KindStorageWrite, Stage: stage, Msg: fmt.Sprintf(format, args...), Err: err}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}
