package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/adieyal/pocketreporter2/internal/backup"
	"github.com/adieyal/pocketreporter2/internal/catalog"
	"github.com/adieyal/pocketreporter2/internal/log"
	"github.com/adieyal/pocketreporter2/internal/store"
)

type errorResponse struct {
	Error    string         `json:"error"`
	Restored *backup.Counts `json:"restored,omitempty"`
}

// StatusFor maps an error to the HTTP status it is reported with.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, catalog.ErrUnknownTemplate):
		return http.StatusNotFound
	case errors.Is(err, backup.ErrInvalidBackupFormat),
		errors.Is(err, store.ErrInvalidStory),
		errors.Is(err, store.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrStorageQuotaExceeded):
		return http.StatusInsufficientStorage
	}
	return http.StatusInternalServerError
}

// writeError logs err under code and sends it as a JSON body.
func writeError(w http.ResponseWriter, r *http.Request, code string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s: %s", code, err)
	} else {
		log.Debugf("%s: %s", code, err)
	}

	resp := errorResponse{Error: err.Error()}
	var partial *backup.PartialRestoreError
	if errors.As(err, &partial) {
		restored := partial.Restored
		resp.Restored = &restored
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}
