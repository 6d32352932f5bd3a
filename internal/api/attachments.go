package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/adieyal/pocketreporter2/internal/reporter"
	"github.com/adieyal/pocketreporter2/internal/store"
	"github.com/adieyal/pocketreporter2/pkg/blobcodec"
)

// MaxMediaBytes bounds a single uploaded photo, recording or document.
const MaxMediaBytes = 64 << 20

func recordID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id: %v", store.ErrInvalidRecord, err)
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	return nil
}

// =============================================================================
// Media
// =============================================================================

// AddMedia stores the raw request body as a photo or audio clip. The media
// type comes from ?type= and the MIME type from Content-Type.
func AddMedia(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxMediaBytes))
		if err != nil {
			writeError(w, r, "media.add.read", fmt.Errorf("%w: %v", store.ErrInvalidRecord, err))
			return
		}
		mimeType := r.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = blobcodec.DefaultMediaType
		}
		item, err := app.Reporter.AddMedia(chi.URLParam(r, "uuid"), store.MediaType(r.URL.Query().Get("type")), blob, mimeType)
		if err != nil {
			writeError(w, r, "media.add", err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, item)
	}
}

type documentRequest struct {
	Data          string `json:"data"`
	MimeType      string `json:"mimeType"`
	ExtractedText string `json:"extractedText"`
}

// AddDocument stores a scanned document sent as base64. Text already
// extracted by the client is kept as is; otherwise App.OCR is asked.
func AddDocument(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxMediaBytes)
		var req documentRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, "documents.add.decode", err)
			return
		}
		blob, err := blobcodec.Decode(req.Data, req.MimeType)
		if err != nil {
			writeError(w, r, "documents.add.decode", fmt.Errorf("%w: %v", store.ErrInvalidRecord, err))
			return
		}
		ocr := app.OCR
		if req.ExtractedText != "" {
			ocr = suppliedText(req.ExtractedText)
		}
		item, err := app.Reporter.AddDocument(r.Context(), chi.URLParam(r, "uuid"), blob, req.MimeType, ocr)
		if err != nil {
			writeError(w, r, "documents.add", err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, item)
	}
}

func suppliedText(text string) reporter.TextExtractor {
	return reporter.TextExtractorFunc(func(context.Context, []byte, string) (string, error) {
		return text, nil
	})
}

func ListMedia(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := chi.URLParam(r, "uuid")
		if _, err := app.Reporter.Story(uuid); err != nil {
			writeError(w, r, "media.list", err)
			return
		}
		items, err := app.Reporter.Media(uuid)
		if err != nil {
			writeError(w, r, "media.list", err)
			return
		}
		if items == nil {
			items = []*store.MediaItem{}
		}
		render.JSON(w, r, items)
	}
}

// MediaBlob serves the stored bytes of one media item.
func MediaBlob(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := recordID(r)
		if err != nil {
			writeError(w, r, "media.blob", err)
			return
		}
		item, err := app.Reporter.Store().GetMedia(id)
		if err != nil {
			writeError(w, r, "media.blob", err)
			return
		}
		if item == nil {
			writeError(w, r, "media.blob", fmt.Errorf("media %d: %w", id, store.ErrNotFound))
			return
		}
		w.Header().Set("Content-Type", item.MimeType)
		w.WriteHeader(http.StatusOK)
		w.Write(item.Blob)
	}
}

type captionRequest struct {
	Caption string `json:"caption"`
}

func CaptionMedia(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := recordID(r)
		if err != nil {
			writeError(w, r, "media.caption", err)
			return
		}
		var req captionRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, "media.caption.decode", err)
			return
		}
		if err := app.Reporter.CaptionMedia(id, req.Caption); err != nil {
			writeError(w, r, "media.caption", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteMedia(app App) http.HandlerFunc {
	return deleteByID("media.delete", app.Reporter.DeleteMedia)
}

// =============================================================================
// Contacts & locations
// =============================================================================

func AddContact(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c store.Contact
		if err := decodeBody(r, &c); err != nil {
			writeError(w, r, "contacts.add.decode", err)
			return
		}
		created, err := app.Reporter.AddContact(chi.URLParam(r, "uuid"), c)
		if err != nil {
			writeError(w, r, "contacts.add", err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, created)
	}
}

func ListContacts(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contacts, err := app.Reporter.Contacts(chi.URLParam(r, "uuid"))
		if err != nil {
			writeError(w, r, "contacts.list", err)
			return
		}
		if contacts == nil {
			contacts = []*store.Contact{}
		}
		render.JSON(w, r, contacts)
	}
}

type contactPatchRequest struct {
	Name         *string `json:"name"`
	Role         *string `json:"role"`
	Organization *string `json:"organization"`
	Phone        *string `json:"phone"`
	Email        *string `json:"email"`
	Notes        *string `json:"notes"`
}

func UpdateContact(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := recordID(r)
		if err != nil {
			writeError(w, r, "contacts.update", err)
			return
		}
		var req contactPatchRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, "contacts.update.decode", err)
			return
		}
		err = app.Reporter.UpdateContact(id, store.ContactPatch(req))
		if err != nil {
			writeError(w, r, "contacts.update", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteContact(app App) http.HandlerFunc {
	return deleteByID("contacts.delete", app.Reporter.DeleteContact)
}

func AddLocation(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var l store.Location
		if err := decodeBody(r, &l); err != nil {
			writeError(w, r, "locations.add.decode", err)
			return
		}
		created, err := app.Reporter.AddLocation(chi.URLParam(r, "uuid"), l)
		if err != nil {
			writeError(w, r, "locations.add", err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, created)
	}
}

func ListLocations(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locations, err := app.Reporter.Locations(chi.URLParam(r, "uuid"))
		if err != nil {
			writeError(w, r, "locations.list", err)
			return
		}
		if locations == nil {
			locations = []*store.Location{}
		}
		render.JSON(w, r, locations)
	}
}

type locationPatchRequest struct {
	Name    *string  `json:"name"`
	Address *string  `json:"address"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Notes   *string  `json:"notes"`
}

func UpdateLocation(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := recordID(r)
		if err != nil {
			writeError(w, r, "locations.update", err)
			return
		}
		var req locationPatchRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, "locations.update.decode", err)
			return
		}
		err = app.Reporter.UpdateLocation(id, store.LocationPatch(req))
		if err != nil {
			writeError(w, r, "locations.update", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteLocation(app App) http.HandlerFunc {
	return deleteByID("locations.delete", app.Reporter.DeleteLocation)
}

func deleteByID(code string, del func(id int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := recordID(r)
		if err != nil {
			writeError(w, r, code, err)
			return
		}
		if err := del(id); err != nil {
			writeError(w, r, code, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
