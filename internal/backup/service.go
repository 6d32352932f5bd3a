package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/adieyal/pocketreporter2/internal/log"
	"github.com/adieyal/pocketreporter2/internal/store"
	"github.com/adieyal/pocketreporter2/pkg/blobcodec"
)

// Service exports and restores the full store.
type Service struct {
	store store.Storer
	now   func() time.Time
}

func NewService(st store.Storer) *Service {
	return &Service{store: st, now: time.Now}
}

// Export reads every collection and assembles a document.
func (s *Service) Export(ctx context.Context) (*Document, error) {
	stories, err := s.store.ListStories(store.StoryFilter{})
	if err != nil {
		return nil, fmt.Errorf("export stories: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items, err := s.store.ListMedia(store.MediaFilter{})
	if err != nil {
		return nil, fmt.Errorf("export media: %w", err)
	}
	media := make([]MediaEntry, 0, len(items))
	for _, m := range items {
		enc := blobcodec.Encode(m.Blob, m.MimeType)
		media = append(media, MediaEntry{
			ID:            m.ID,
			StoryUUID:     m.StoryUUID,
			Type:          m.Type,
			Caption:       m.Caption,
			ExtractedText: m.ExtractedText,
			CreatedAt:     m.CreatedAt,
			BlobBase64:    enc.Text,
			MimeType:      enc.MediaType,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contacts, err := s.store.ListContacts("")
	if err != nil {
		return nil, fmt.Errorf("export contacts: %w", err)
	}
	locations, err := s.store.ListLocations("")
	if err != nil {
		return nil, fmt.Errorf("export locations: %w", err)
	}

	doc := &Document{
		Version:    DocumentVersion,
		ExportedAt: store.NormalizeTime(s.now()),
		Stories:    nonNil(stories),
		Media:      media,
		Contacts:   nonNil(contacts),
		Locations:  nonNil(locations),
	}
	log.With(log.Fields{
		"stories":   len(doc.Stories),
		"media":     len(doc.Media),
		"contacts":  len(doc.Contacts),
		"locations": len(doc.Locations),
	}).Info("backup: exported")
	return doc, nil
}

// Import replaces the entire store with the contents of doc. The document is
// validated first; once clearing starts, a failure is reported as a
// *PartialRestoreError and nothing is rolled back.
func (s *Service) Import(ctx context.Context, doc *Document) (Counts, error) {
	if doc == nil {
		return Counts{}, &InvalidFormatError{Err: fmt.Errorf("nil document")}
	}
	blobs, err := doc.decode()
	if err != nil {
		return Counts{}, err
	}
	if err := ctx.Err(); err != nil {
		return Counts{}, err
	}
	// A backup carries every collection, so the store must hold them all
	// before anything is cleared.
	if v := s.store.SchemaVersion(); v < store.LatestSchemaVersion {
		return Counts{}, fmt.Errorf("import needs schema v%d, store is at v%d: %w",
			store.LatestSchemaVersion, v, store.ErrCollectionUnavailable)
	}

	var restored Counts
	partial := func(err error) (Counts, error) {
		log.Errorf("backup: import aborted after clearing: %v", err)
		return restored, &PartialRestoreError{Restored: restored, Err: err}
	}

	for _, clearFn := range []func() error{
		s.store.ClearStories,
		s.store.ClearMedia,
		s.store.ClearContacts,
		s.store.ClearLocations,
	} {
		if err := clearFn(); err != nil {
			return partial(fmt.Errorf("clear: %w", err))
		}
	}

	for _, st := range doc.Stories {
		rec := st.Clone()
		rec.ID = 0
		if _, err := s.store.AddStory(rec); err != nil {
			return partial(fmt.Errorf("story %s: %w", st.UUID, err))
		}
		restored.Stories++
	}

	for i, m := range doc.Media {
		item := &store.MediaItem{
			StoryUUID:     m.StoryUUID,
			Type:          m.Type,
			Blob:          blobs[i],
			MimeType:      m.MimeType,
			Caption:       m.Caption,
			ExtractedText: m.ExtractedText,
			CreatedAt:     m.CreatedAt,
		}
		if item.MimeType == "" {
			item.MimeType = blobcodec.DefaultMediaType
		}
		if _, err := s.store.AddMedia(item); err != nil {
			return partial(fmt.Errorf("media[%d]: %w", i, err))
		}
		restored.Media++
	}

	for i, c := range doc.Contacts {
		rec := *c
		rec.ID = 0
		if _, err := s.store.AddContact(&rec); err != nil {
			return partial(fmt.Errorf("contacts[%d]: %w", i, err))
		}
		restored.Contacts++
	}

	for i, l := range doc.Locations {
		rec := l.Clone()
		rec.ID = 0
		if _, err := s.store.AddLocation(rec); err != nil {
			return partial(fmt.Errorf("locations[%d]: %w", i, err))
		}
		restored.Locations++
	}

	log.With(log.Fields{
		"stories":   restored.Stories,
		"media":     restored.Media,
		"contacts":  restored.Contacts,
		"locations": restored.Locations,
	}).Info("backup: restored")
	return restored, nil
}

// ImportBytes parses data and imports it.
func (s *Service) ImportBytes(ctx context.Context, data []byte) (Counts, error) {
	doc, err := Parse(data)
	if err != nil {
		return Counts{}, err
	}
	return s.Import(ctx, doc)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
