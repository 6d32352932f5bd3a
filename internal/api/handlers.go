package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/adieyal/pocketreporter2/internal/backup"
	"github.com/adieyal/pocketreporter2/internal/store"
)

// MaxBackupBytes bounds the size of an uploaded backup document.
const MaxBackupBytes = 512 << 20

func Health(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]any{
			"status":        "ok",
			"schemaVersion": app.Reporter.Store().SchemaVersion(),
		})
	}
}

func ListStories(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stories, err := app.Reporter.ListStories(r.URL.Query().Get("q"))
		if err != nil {
			writeError(w, r, "stories.list", err)
			return
		}
		if stories == nil {
			stories = []*store.Story{}
		}
		render.JSON(w, r, stories)
	}
}

type createStoryRequest struct {
	TemplateID string `json:"templateId"`
}

func CreateStory(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createStoryRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			writeError(w, r, "stories.create.decode", fmt.Errorf("%w: %v", store.ErrInvalidStory, err))
			return
		}
		story, err := app.Reporter.CreateStoryFromTemplate(req.TemplateID)
		if err != nil {
			writeError(w, r, "stories.create", err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, story)
	}
}

func GetStory(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		story, err := app.Reporter.Story(chi.URLParam(r, "uuid"))
		if err != nil {
			writeError(w, r, "stories.get", err)
			return
		}
		render.JSON(w, r, story)
	}
}

func ExportStory(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := app.Bundles.Export(r.Context(), chi.URLParam(r, "uuid"))
		if err != nil {
			writeError(w, r, "stories.bundle", err)
			return
		}
		w.Header().Set("Content-Type", result.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		w.Write(result.Data)
	}
}

func ExportBackup(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := app.Backups.Export(r.Context())
		if err != nil {
			writeError(w, r, "backup.export", err)
			return
		}
		data, err := backup.Marshal(doc)
		if err != nil {
			writeError(w, r, "backup.marshal", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backup.FileName(doc)))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func ImportBackup(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBackupBytes))
		if err != nil {
			writeError(w, r, "backup.import.read", &backup.InvalidFormatError{Err: err})
			return
		}
		counts, err := app.Backups.ImportBytes(r.Context(), data)
		if err != nil {
			writeError(w, r, "backup.import", err)
			return
		}
		render.JSON(w, r, counts)
	}
}

func ClearStories(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := app.Reporter.ClearAllStories(); err != nil {
			writeError(w, r, "stories.clear", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Wipe(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := app.Reporter.Wipe(); err != nil {
			writeError(w, r, "wipe", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SweepOrphans(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sweep, err := app.Reporter.SweepOrphans()
		if err != nil {
			writeError(w, r, "sweep", err)
			return
		}
		render.JSON(w, r, sweep)
	}
}
