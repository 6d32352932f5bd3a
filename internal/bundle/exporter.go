// Package bundle builds the per-story zip handed to editors: a Markdown
// report, a contact sheet and the raw media files.
package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/adieyal/pocketreporter2/internal/files"
	"github.com/adieyal/pocketreporter2/internal/log"
	"github.com/adieyal/pocketreporter2/internal/store"
)

// ErrExportFailed wraps every failure while assembling a bundle.
var ErrExportFailed = errors.New("story export failed")

// Result is a finished archive.
type Result struct {
	Name        string
	Filename    string
	ContentType string
	Data        []byte
}

// Exporter reads a story and its attachments from the store.
type Exporter struct {
	store store.Storer
	loc   *time.Location
}

// NewExporter returns an exporter rendering report timestamps in loc
// (time.Local when nil).
func NewExporter(st store.Storer, loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	return &Exporter{store: st, loc: loc}
}

// Export builds the bundle for the story with the given uuid entirely in
// memory. On any failure no output is returned.
func (e *Exporter) Export(ctx context.Context, storyUUID string) (*Result, error) {
	story, err := e.store.GetStoryByUUID(storyUUID)
	if err != nil {
		return nil, fmt.Errorf("%w: load story %s: %w", ErrExportFailed, storyUUID, err)
	}
	if story == nil {
		return nil, fmt.Errorf("%w: story %s: %w", ErrExportFailed, storyUUID, store.ErrNotFound)
	}
	contacts, err := e.store.ListContacts(storyUUID)
	if err != nil {
		return nil, fmt.Errorf("%w: load contacts: %w", ErrExportFailed, err)
	}
	locations, err := e.store.ListLocations(storyUUID)
	if err != nil {
		return nil, fmt.Errorf("%w: load locations: %w", ErrExportFailed, err)
	}
	media, err := e.store.ListMedia(store.MediaFilter{StoryUUID: storyUUID})
	if err != nil {
		return nil, fmt.Errorf("%w: load media: %w", ErrExportFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}

	folder := FolderName(story)
	data, err := e.assemble(folder, story, contacts, locations, media)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}

	log.With(log.Fields{
		"story":    storyUUID,
		"media":    len(media),
		"contacts": len(contacts),
		"size":     humanize.Bytes(uint64(len(data))),
	}).Info("bundle: exported")

	return &Result{
		Name:        folder,
		Filename:    folder + ".zip",
		ContentType: "application/zip",
		Data:        data,
	}, nil
}

func (e *Exporter) assemble(folder string, story *store.Story, contacts []*store.Contact,
	locations []*store.Location, media []*store.MediaItem) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := story.UpdatedAt

	if _, err := zw.CreateHeader(&zip.FileHeader{Name: folder + "/", Modified: modified}); err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}

	report := Report(story, contacts, locations, e.loc)
	if err := writeFile(zw, path.Join(folder, "story.md"), []byte(report), zip.Deflate, modified); err != nil {
		return nil, err
	}

	if len(contacts) > 0 {
		if err := writeFile(zw, path.Join(folder, "sources.csv"), []byte(ContactsCSV(contacts)), zip.Deflate, modified); err != nil {
			return nil, err
		}
	}

	if len(media) > 0 {
		if _, err := zw.CreateHeader(&zip.FileHeader{Name: folder + "/media/", Modified: modified}); err != nil {
			return nil, fmt.Errorf("create media folder: %w", err)
		}
		for i, m := range media {
			name := path.Join(folder, "media", MediaFileName(i+1, m.MimeType))
			// Photos and audio are already compressed.
			if err := writeFile(zw, name, m.Blob, zip.Store, m.CreatedAt); err != nil {
				return nil, err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFile(zw *zip.Writer, name string, data []byte, method uint16, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: modified})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Save writes the archive into dir inside the vault and returns its path.
func (r *Result) Save(v *files.Vault, dir string) (string, error) {
	name := path.Join(dir, r.Filename)
	if err := v.Write(name, r.Data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return name, nil
}
