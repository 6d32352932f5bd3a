// Package store provides the versioned on-device persistence for Pocket Reporter.
// Stories, media, contacts and locations live in four collections keyed by a
// store-assigned surrogate id, with secondary lookups by story uuid.
package store

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// TimeLayout is the wire and column format for every timestamp in the store.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// NormalizeTime reduces t to the precision the store persists: UTC, milliseconds.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

type Status string

const (
	StatusDraft    Status = "draft"
	StatusComplete Status = "complete"
)

func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusComplete
}

type QuestionType string

const (
	QuestionText     QuestionType = "text"
	QuestionTextarea QuestionType = "textarea"
	QuestionDate     QuestionType = "date"
	QuestionCheckbox QuestionType = "checkbox"
	QuestionNote     QuestionType = "note"
)

func (q QuestionType) Valid() bool {
	switch q {
	case QuestionText, QuestionTextarea, QuestionDate, QuestionCheckbox, QuestionNote:
		return true
	}
	return false
}

type MediaType string

const (
	MediaPhoto    MediaType = "photo"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
)

func (m MediaType) Valid() bool {
	return m == MediaPhoto || m == MediaAudio || m == MediaDocument
}

// Category groups templates in the catalog.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Question is one entry of a template. Tips are informational and take no answer.
type Question struct {
	ID         string       `json:"id"`
	Text       string       `json:"text"`
	HelperText string       `json:"helperText,omitempty"`
	Type       QuestionType `json:"type"`
	Required   bool         `json:"required"`
	IsTip      bool         `json:"isTip,omitempty"`
}

// Template is an externally supplied question set. Stories embed a copy.
type Template struct {
	ID          string     `json:"id"`
	CategoryID  string     `json:"categoryId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

// Clone returns a deep copy that shares no memory with t.
func (t Template) Clone() Template {
	c := t
	if t.Questions != nil {
		c.Questions = make([]Question, len(t.Questions))
		copy(c.Questions, t.Questions)
	}
	return c
}

// Question looks up a question by id.
func (t Template) Question(id string) (Question, bool) {
	for _, q := range t.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// AnswerValue holds either free text or a checkbox state.
type AnswerValue struct {
	text   string
	flag   bool
	isBool bool
}

func TextValue(s string) AnswerValue { return AnswerValue{text: s} }

func BoolValue(b bool) AnswerValue { return AnswerValue{flag: b, isBool: true} }

func (v AnswerValue) IsBool() bool { return v.isBool }

func (v AnswerValue) Bool() bool { return v.isBool && v.flag }

// String renders the value the way reports show it.
func (v AnswerValue) String() string {
	if v.isBool {
		if v.flag {
			return "true"
		}
		return "false"
	}
	return v.text
}

// Answered reports whether the value counts as an answer. Empty text and an
// unchecked box do not.
func (v AnswerValue) Answered() bool {
	if v.isBool {
		return v.flag
	}
	return v.text != ""
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.isBool {
		return json.Marshal(v.flag)
	}
	return json.Marshal(v.text)
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = AnswerValue{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = TextValue(s)
		return nil
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*v = BoolValue(data[0] == 't')
		return nil
	}
	return fmt.Errorf("answer value must be a string or boolean, got %s", data)
}

type Answer struct {
	QuestionID string      `json:"questionId"`
	Value      AnswerValue `json:"value"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Story is a report instance: a frozen template plus headline and answers.
type Story struct {
	ID               int64             `json:"id,omitempty"`
	UUID             string            `json:"uuid"`
	Headline         string            `json:"headline"`
	Status           Status            `json:"status"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	TemplateSnapshot Template          `json:"templateSnapshot"`
	Answers          map[string]Answer `json:"answers"`
}

// Clone returns a deep copy of s.
func (s *Story) Clone() *Story {
	if s == nil {
		return nil
	}
	c := *s
	c.TemplateSnapshot = s.TemplateSnapshot.Clone()
	c.Answers = make(map[string]Answer, len(s.Answers))
	for k, a := range s.Answers {
		c.Answers[k] = a
	}
	return &c
}

// Validate enforces that the story is addressable, has a known status and
// only answers questions present in its snapshot.
func (s *Story) Validate() error {
	if s.UUID == "" {
		return fmt.Errorf("%w: missing uuid", ErrInvalidStory)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidStory, s.Status)
	}
	for key, a := range s.Answers {
		if _, ok := s.TemplateSnapshot.Question(key); !ok {
			return fmt.Errorf("%w: answer %q does not name a question in the snapshot", ErrInvalidStory, key)
		}
		if a.QuestionID != "" && a.QuestionID != key {
			return fmt.Errorf("%w: answer keyed %q carries question id %q", ErrInvalidStory, key, a.QuestionID)
		}
	}
	return nil
}

func (s *Story) normalize() {
	s.CreatedAt = NormalizeTime(s.CreatedAt)
	s.UpdatedAt = NormalizeTime(s.UpdatedAt)
	if s.Answers == nil {
		s.Answers = map[string]Answer{}
	}
	for k, a := range s.Answers {
		a.QuestionID = k
		a.UpdatedAt = NormalizeTime(a.UpdatedAt)
		s.Answers[k] = a
	}
}

// MediaItem is a binary attachment. The blob is immutable once stored.
type MediaItem struct {
	ID            int64     `json:"id,omitempty"`
	StoryUUID     string    `json:"storyUuid"`
	Type          MediaType `json:"type"`
	Blob          []byte    `json:"-"`
	MimeType      string    `json:"mimeType"`
	Caption       string    `json:"caption"`
	ExtractedText string    `json:"extractedText,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (m *MediaItem) Clone() *MediaItem {
	c := *m
	if m.Blob != nil {
		c.Blob = make([]byte, len(m.Blob))
		copy(c.Blob, m.Blob)
	}
	return &c
}

func (m *MediaItem) Validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w: media type %q", ErrInvalidRecord, m.Type)
	}
	return nil
}

type Contact struct {
	ID           int64     `json:"id,omitempty"`
	StoryUUID    string    `json:"storyUuid"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	Organization string    `json:"organization"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (c *Contact) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: contact name is required", ErrInvalidRecord)
	}
	return nil
}

// Location is a place attached to a story. Coordinates are absent when GPS was unavailable.
type Location struct {
	ID        int64     `json:"id,omitempty"`
	StoryUUID string    `json:"storyUuid"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Lat       *float64  `json:"lat,omitempty"`
	Lng       *float64  `json:"lng,omitempty"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
}

func (l *Location) Clone() *Location {
	c := *l
	if l.Lat != nil {
		lat := *l.Lat
		c.Lat = &lat
	}
	if l.Lng != nil {
		lng := *l.Lng
		c.Lng = &lng
	}
	return &c
}

func (l *Location) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("%w: location name is required", ErrInvalidRecord)
	}
	return nil
}

// StoryPatch lists the story fields Update may change. Nil fields are left alone;
// Answers are merged key by key.
type StoryPatch struct {
	Headline  *string
	Status    *Status
	Answers   map[string]Answer
	UpdatedAt *time.Time
}

func (p StoryPatch) apply(s *Story) {
	if p.Headline != nil {
		s.Headline = *p.Headline
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if len(p.Answers) > 0 && s.Answers == nil {
		s.Answers = make(map[string]Answer, len(p.Answers))
	}
	for k, a := range p.Answers {
		s.Answers[k] = a
	}
	if p.UpdatedAt != nil {
		s.UpdatedAt = *p.UpdatedAt
	}
}

// MediaPatch covers the only mutable media fields; the blob is never patched.
type MediaPatch struct {
	Caption       *string
	ExtractedText *string
}

func (p MediaPatch) apply(m *MediaItem) {
	if p.Caption != nil {
		m.Caption = *p.Caption
	}
	if p.ExtractedText != nil {
		m.ExtractedText = *p.ExtractedText
	}
}

type ContactPatch struct {
	Name         *string
	Role         *string
	Organization *string
	Phone        *string
	Email        *string
	Notes        *string
}

func (p ContactPatch) apply(c *Contact) {
	setString(&c.Name, p.Name)
	setString(&c.Role, p.Role)
	setString(&c.Organization, p.Organization)
	setString(&c.Phone, p.Phone)
	setString(&c.Email, p.Email)
	setString(&c.Notes, p.Notes)
}

type LocationPatch struct {
	Name    *string
	Address *string
	Lat     *float64
	Lng     *float64
	Notes   *string
}

func (p LocationPatch) apply(l *Location) {
	setString(&l.Name, p.Name)
	setString(&l.Address, p.Address)
	setString(&l.Notes, p.Notes)
	if p.Lat != nil {
		lat := *p.Lat
		l.Lat = &lat
	}
	if p.Lng != nil {
		lng := *p.Lng
		l.Lng = &lng
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// StoryFilter selects stories by secondary key. Zero values match everything;
// results come back in insertion order unless SortByUpdated is set.
type StoryFilter struct {
	UUID          string
	Status        Status
	SortByUpdated bool
	Desc          bool
}

type MediaFilter struct {
	StoryUUID string
	Type      MediaType
}

// Storer defines the interface for data persistence.
// SQLiteStore is the production implementation; MemStore backs tests and the
// browser shell.
type Storer interface {
	// Stories
	AddStory(story *Story) (int64, error)
	GetStory(id int64) (*Story, error)
	GetStoryByUUID(uuid string) (*Story, error)
	UpdateStory(id int64, patch StoryPatch) error
	PutStory(story *Story) error
	DeleteStory(id int64) error
	ListStories(filter StoryFilter) ([]*Story, error)
	ClearStories() error
	CountStories() (int, error)

	// Media
	AddMedia(item *MediaItem) (int64, error)
	GetMedia(id int64) (*MediaItem, error)
	UpdateMedia(id int64, patch MediaPatch) error
	DeleteMedia(id int64) error
	ListMedia(filter MediaFilter) ([]*MediaItem, error)
	ClearMedia() error
	CountMedia() (int, error)

	// Contacts
	AddContact(contact *Contact) (int64, error)
	GetContact(id int64) (*Contact, error)
	UpdateContact(id int64, patch ContactPatch) error
	DeleteContact(id int64) error
	ListContacts(storyUUID string) ([]*Contact, error)
	ClearContacts() error
	CountContacts() (int, error)

	// Locations
	AddLocation(location *Location) (int64, error)
	GetLocation(id int64) (*Location, error)
	UpdateLocation(id int64, patch LocationPatch) error
	DeleteLocation(id int64) error
	ListLocations(storyUUID string) ([]*Location, error)
	ClearLocations() error
	CountLocations() (int, error)

	// Lifecycle
	Wipe() error
	SchemaVersion() int
	Close() error
}
