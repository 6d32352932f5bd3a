// Package backup snapshots the whole store into one portable JSON document
// and restores it destructively.
package backup

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"

	"github.com/adieyal/pocketreporter2/internal/store"
	"github.com/adieyal/pocketreporter2/pkg/blobcodec"
)

// DocumentVersion identifies the backup document layout. It is independent of
// the store's schema version and written on every export.
const DocumentVersion = 1

var (
	ErrInvalidBackupFormat = errors.New("invalid backup file format")
	ErrPartialRestore      = errors.New("backup only partially restored")
)

// Document is the full-database snapshot.
type Document struct {
	Version    int               `json:"version"`
	ExportedAt time.Time         `json:"exportedAt"`
	Stories    []*store.Story    `json:"stories"`
	Media      []MediaEntry      `json:"media"`
	Contacts   []*store.Contact  `json:"contacts"`
	Locations  []*store.Location `json:"locations"`
}

// MediaEntry is a media item with its blob carried as base64 text.
type MediaEntry struct {
	ID            int64           `json:"id,omitempty"`
	StoryUUID     string          `json:"storyUuid"`
	Type          store.MediaType `json:"type"`
	Caption       string          `json:"caption"`
	ExtractedText string          `json:"extractedText,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	BlobBase64    string          `json:"blobBase64"`
	MimeType      string          `json:"mimeType"`
}

// Counts is the number of records per collection.
type Counts struct {
	Stories   int `json:"stories"`
	Media     int `json:"media"`
	Contacts  int `json:"contacts"`
	Locations int `json:"locations"`
}

// InvalidFormatError describes every problem found in a rejected document.
// It matches ErrInvalidBackupFormat and unwraps to the individual problems.
type InvalidFormatError struct {
	Err error
}

func (e *InvalidFormatError) Error() string {
	return ErrInvalidBackupFormat.Error() + ": " + e.Err.Error()
}

func (e *InvalidFormatError) Unwrap() error { return e.Err }

func (e *InvalidFormatError) Is(target error) bool { return target == ErrInvalidBackupFormat }

// PartialRestoreError reports an import that failed after existing data was cleared.
type PartialRestoreError struct {
	Restored Counts
	Err      error
}

func (e *PartialRestoreError) Error() string {
	return fmt.Sprintf("%s (restored %d stories, %d media, %d contacts, %d locations): %v",
		ErrPartialRestore, e.Restored.Stories, e.Restored.Media, e.Restored.Contacts, e.Restored.Locations, e.Err)
}

func (e *PartialRestoreError) Unwrap() error { return e.Err }

func (e *PartialRestoreError) Is(target error) bool { return target == ErrPartialRestore }

// rawDocument keeps required fields as pointers so absence is distinguishable
// from an empty value.
type rawDocument struct {
	Version    *int              `json:"version"`
	ExportedAt *time.Time        `json:"exportedAt"`
	Stories    *[]*store.Story   `json:"stories"`
	Media      []MediaEntry      `json:"media"`
	Contacts   []*store.Contact  `json:"contacts"`
	Locations  []*store.Location `json:"locations"`
}

// Parse decodes and validates a backup document. Nothing is written anywhere;
// callers run it before any destructive step.
func Parse(data []byte) (*Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &InvalidFormatError{Err: multierror.Append(nil, fmt.Errorf("malformed JSON: %w", err))}
	}

	var errs *multierror.Error
	if raw.Version == nil || *raw.Version == 0 {
		errs = multierror.Append(errs, errors.New("missing version"))
	}
	if raw.Stories == nil {
		errs = multierror.Append(errs, errors.New("missing stories"))
	}
	if errs != nil {
		return nil, &InvalidFormatError{Err: errs}
	}

	doc := &Document{
		Version:   *raw.Version,
		Stories:   *raw.Stories,
		Media:     raw.Media,
		Contacts:  raw.Contacts,
		Locations: raw.Locations,
	}
	if raw.ExportedAt != nil {
		doc.ExportedAt = *raw.ExportedAt
	}
	if _, err := doc.decode(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks every record in the document.
func (d *Document) Validate() error {
	_, err := d.decode()
	return err
}

// decode validates the document and returns the media blobs in order.
func (d *Document) decode() ([][]byte, error) {
	var errs *multierror.Error
	if d.Version == 0 {
		errs = multierror.Append(errs, errors.New("missing version"))
	}

	seen := make(map[string]bool, len(d.Stories))
	for i, s := range d.Stories {
		if s == nil {
			errs = multierror.Append(errs, fmt.Errorf("stories[%d]: null", i))
			continue
		}
		if err := s.Validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("stories[%d]: %w", i, err))
		}
		if s.UUID != "" && seen[s.UUID] {
			errs = multierror.Append(errs, fmt.Errorf("stories[%d]: duplicate uuid %s", i, s.UUID))
		}
		seen[s.UUID] = true
	}

	blobs := make([][]byte, len(d.Media))
	for i, m := range d.Media {
		if !m.Type.Valid() {
			errs = multierror.Append(errs, fmt.Errorf("media[%d]: unknown type %q", i, m.Type))
		}
		b, err := blobcodec.Decode(m.BlobBase64, m.MimeType)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("media[%d]: %w", i, err))
		}
		blobs[i] = b
	}

	for i, c := range d.Contacts {
		if c == nil {
			errs = multierror.Append(errs, fmt.Errorf("contacts[%d]: null", i))
			continue
		}
		if err := c.Validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("contacts[%d]: %w", i, err))
		}
	}
	for i, l := range d.Locations {
		if l == nil {
			errs = multierror.Append(errs, fmt.Errorf("locations[%d]: null", i))
			continue
		}
		if err := l.Validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("locations[%d]: %w", i, err))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, &InvalidFormatError{Err: err}
	}
	return blobs, nil
}

// Counts returns the number of records the document carries.
func (d *Document) Counts() Counts {
	return Counts{
		Stories:   len(d.Stories),
		Media:     len(d.Media),
		Contacts:  len(d.Contacts),
		Locations: len(d.Locations),
	}
}

// Marshal renders the document as indented JSON.
func Marshal(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
