package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/publish"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
	State   string `json:"state,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps the error taxonomy onto HTTP statuses.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidRequest, apperr.KindUnsupportedVersion:
		return http.StatusBadRequest
	case apperr.KindInvalidFormat, apperr.KindEmptyDataset, apperr.KindMissingGeometry, apperr.KindUnknownProjection:
		return http.StatusUnprocessableEntity
	case apperr.KindAlreadyExists:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindRemoteService:
		return http.StatusBadGateway
	default:
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusInternalServerError
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := errorBody{
		Error:   apperr.KindOf(err).String(),
		Message: err.Error(),
		Stage:   string(apperr.StageOf(err)),
		State:   string(publish.RejectedIn(err)),
	}
	if status >= http.StatusInternalServerError {
		a.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	} else {
		a.Logger.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, body)
}
