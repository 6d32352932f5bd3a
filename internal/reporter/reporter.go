// Package reporter is the application layer the CLI, API and wasm bridge share.
// It owns story creation from templates, the story list, attachments and the
// destructive clear and wipe operations.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/adieyal/pocketreporter2/internal/catalog"
	"github.com/adieyal/pocketreporter2/internal/files"
	"github.com/adieyal/pocketreporter2/internal/log"
	"github.com/adieyal/pocketreporter2/internal/store"
	"github.com/adieyal/pocketreporter2/pkg/search"
)

var ErrNoCatalog = errors.New("no template catalog configured")

// TextExtractor pulls text out of a scanned document image.
type TextExtractor interface {
	ExtractText(ctx context.Context, blob []byte, mimeType string) (string, error)
}

// TextExtractorFunc adapts a function to TextExtractor.
type TextExtractorFunc func(ctx context.Context, blob []byte, mimeType string) (string, error)

func (f TextExtractorFunc) ExtractText(ctx context.Context, blob []byte, mimeType string) (string, error) {
	return f(ctx, blob, mimeType)
}

type Service struct {
	store   store.Storer
	vault   *files.Vault
	catalog *catalog.Catalog
	now     func() time.Time
	newUUID func() string
}

type Option func(*Service)

func WithVault(v *files.Vault) Option { return func(s *Service) { s.vault = v } }

func WithCatalog(c *catalog.Catalog) Option { return func(s *Service) { s.catalog = c } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithUUIDs(next func() string) Option { return func(s *Service) { s.newUUID = next } }

func New(st store.Storer, opts ...Option) *Service {
	s := &Service{
		store:   st,
		now:     time.Now,
		newUUID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Store() store.Storer { return s.store }

func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

func (s *Service) timestamp() time.Time {
	return store.NormalizeTime(s.now())
}

// =============================================================================
// Stories
// =============================================================================

// CreateStory starts a draft from a deep copy of tmpl. Later edits to the
// template never reach the story.
func (s *Service) CreateStory(tmpl store.Template) (*store.Story, error) {
	now := s.timestamp()
	story := &store.Story{
		UUID:             s.newUUID(),
		Headline:         "New " + tmpl.Name,
		Status:           store.StatusDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
		TemplateSnapshot: tmpl.Clone(),
		Answers:          map[string]store.Answer{},
	}
	if _, err := s.store.AddStory(story); err != nil {
		return nil, fmt.Errorf("create story: %w", err)
	}
	log.With(log.Fields{"uuid": story.UUID, "template": tmpl.ID}).Info("story created")
	return story.Clone(), nil
}

// CreateStoryFromTemplate looks templateID up in the catalog and creates a story from it.
func (s *Service) CreateStoryFromTemplate(templateID string) (*store.Story, error) {
	if s.catalog == nil {
		return nil, ErrNoCatalog
	}
	tmpl, err := s.catalog.Template(templateID)
	if err != nil {
		return nil, err
	}
	return s.CreateStory(tmpl)
}

// ListStories returns the stories whose headline or template name contain
// every term of query, most recently updated first.
func (s *Service) ListStories(query string) ([]*store.Story, error) {
	stories, err := s.store.ListStories(store.StoryFilter{SortByUpdated: true, Desc: true})
	if err != nil {
		return nil, err
	}
	m := search.New(query)
	out := make([]*store.Story, 0, len(stories))
	for _, story := range stories {
		if m.Match(story.Headline, story.TemplateSnapshot.Name) {
			out = append(out, story)
		}
	}
	return out, nil
}

func (s *Service) Story(storyUUID string) (*store.Story, error) {
	story, err := s.store.GetStoryByUUID(storyUUID)
	if err != nil {
		return nil, err
	}
	if story == nil {
		return nil, fmt.Errorf("story %s: %w", storyUUID, store.ErrNotFound)
	}
	return story, nil
}

// DeleteStory removes the story record only. Attachments stay until SweepOrphans.
func (s *Service) DeleteStory(storyUUID string) error {
	story, err := s.Story(storyUUID)
	if err != nil {
		return err
	}
	return s.store.DeleteStory(story.ID)
}

// =============================================================================
// Media
// =============================================================================

func (s *Service) AddMedia(storyUUID string, mediaType store.MediaType, blob []byte, mimeType string) (*store.MediaItem, error) {
	if _, err := s.Story(storyUUID); err != nil {
		return nil, err
	}
	item := &store.MediaItem{
		StoryUUID: storyUUID,
		Type:      mediaType,
		Blob:      blob,
		MimeType:  mimeType,
		CreatedAt: s.timestamp(),
	}
	if _, err := s.store.AddMedia(item); err != nil {
		return nil, fmt.Errorf("add %s: %w", mediaType, err)
	}
	return item, nil
}

// AddDocument stores a scanned document with the text ocr finds in it. A
// failed extraction stores the document without text.
func (s *Service) AddDocument(ctx context.Context, storyUUID string, blob []byte, mimeType string, ocr TextExtractor) (*store.MediaItem, error) {
	if _, err := s.Story(storyUUID); err != nil {
		return nil, err
	}
	var text string
	if ocr != nil {
		extracted, err := ocr.ExtractText(ctx, blob, mimeType)
		if err != nil {
			log.Warnf("reporter: text extraction for story %s failed: %v", storyUUID, err)
		} else {
			text = extracted
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item := &store.MediaItem{
		StoryUUID:     storyUUID,
		Type:          store.MediaDocument,
		Blob:          blob,
		MimeType:      mimeType,
		ExtractedText: text,
		CreatedAt:     s.timestamp(),
	}
	if _, err := s.store.AddMedia(item); err != nil {
		return nil, fmt.Errorf("add document: %w", err)
	}
	return item, nil
}

func (s *Service) CaptionMedia(id int64, caption string) error {
	return s.store.UpdateMedia(id, store.MediaPatch{Caption: &caption})
}

func (s *Service) DeleteMedia(id int64) error {
	return s.store.DeleteMedia(id)
}

func (s *Service) Media(storyUUID string) ([]*store.MediaItem, error) {
	return s.store.ListMedia(store.MediaFilter{StoryUUID: storyUUID})
}

// =============================================================================
// Contacts & locations
// =============================================================================

func (s *Service) AddContact(storyUUID string, c store.Contact) (*store.Contact, error) {
	if _, err := s.Story(storyUUID); err != nil {
		return nil, err
	}
	c.ID = 0
	c.StoryUUID = storyUUID
	c.Name = strings.TrimSpace(c.Name)
	c.CreatedAt = s.timestamp()
	if _, err := s.store.AddContact(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) UpdateContact(id int64, patch store.ContactPatch) error {
	return s.store.UpdateContact(id, patch)
}

func (s *Service) DeleteContact(id int64) error {
	return s.store.DeleteContact(id)
}

func (s *Service) Contacts(storyUUID string) ([]*store.Contact, error) {
	return s.store.ListContacts(storyUUID)
}

func (s *Service) AddLocation(storyUUID string, l store.Location) (*store.Location, error) {
	if _, err := s.Story(storyUUID); err != nil {
		return nil, err
	}
	rec := l.Clone()
	rec.ID = 0
	rec.StoryUUID = storyUUID
	rec.Name = strings.TrimSpace(rec.Name)
	rec.CreatedAt = s.timestamp()
	if _, err := s.store.AddLocation(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) UpdateLocation(id int64, patch store.LocationPatch) error {
	return s.store.UpdateLocation(id, patch)
}

func (s *Service) DeleteLocation(id int64) error {
	return s.store.DeleteLocation(id)
}

func (s *Service) Locations(storyUUID string) ([]*store.Location, error) {
	return s.store.ListLocations(storyUUID)
}

// =============================================================================
// Destructive operations
// =============================================================================

// ClearAllStories empties stories and media. Contacts and locations are kept.
func (s *Service) ClearAllStories() error {
	if err := s.store.ClearStories(); err != nil {
		return fmt.Errorf("clear stories: %w", err)
	}
	if err := s.store.ClearMedia(); err != nil {
		return fmt.Errorf("clear media: %w", err)
	}
	log.Warnf("reporter: all stories and media cleared")
	return nil
}

// Wipe destroys every collection and every file in the vault.
func (s *Service) Wipe() error {
	var errs *multierror.Error
	if err := s.store.Wipe(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("wipe store: %w", err))
	}
	if s.vault != nil {
		if err := s.vault.RemoveAll(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("wipe files: %w", err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}
	log.Warnf("reporter: all data wiped")
	return nil
}

// Sweep counts the records SweepOrphans removed.
type Sweep struct {
	Media     int `json:"media"`
	Contacts  int `json:"contacts"`
	Locations int `json:"locations"`
}

func (w Sweep) Total() int { return w.Media + w.Contacts + w.Locations }

// SweepOrphans deletes media, contacts and locations whose story no longer exists.
func (s *Service) SweepOrphans() (Sweep, error) {
	var sweep Sweep
	stories, err := s.store.ListStories(store.StoryFilter{})
	if err != nil {
		return sweep, err
	}
	live := make(map[string]bool, len(stories))
	for _, story := range stories {
		live[story.UUID] = true
	}

	media, err := s.store.ListMedia(store.MediaFilter{})
	if err != nil {
		return sweep, err
	}
	for _, m := range media {
		if !live[m.StoryUUID] {
			if err := s.store.DeleteMedia(m.ID); err != nil {
				return sweep, err
			}
			sweep.Media++
		}
	}

	contacts, err := s.store.ListContacts("")
	if err != nil {
		return sweep, err
	}
	for _, c := range contacts {
		if !live[c.StoryUUID] {
			if err := s.store.DeleteContact(c.ID); err != nil {
				return sweep, err
			}
			sweep.Contacts++
		}
	}

	locations, err := s.store.ListLocations("")
	if err != nil {
		return sweep, err
	}
	for _, l := range locations {
		if !live[l.StoryUUID] {
			if err := s.store.DeleteLocation(l.ID); err != nil {
				return sweep, err
			}
			sweep.Locations++
		}
	}

	if sweep.Total() > 0 {
		log.Infof("reporter: swept %d orphaned media, %d contacts, %d locations", sweep.Media, sweep.Contacts, sweep.Locations)
	}
	return sweep, nil
}
