// Package store provides SQLite-backed persistence for Pocket Reporter.
// Uses ncruces/go-sqlite3/driver which provides a database/sql interface.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Options controls how a database is opened.
type Options struct {
	// Path is a file path or ":memory:".
	Path string
	// SchemaVersion is the version to upgrade to. Zero means latest.
	SchemaVersion int
	// MaxPageCount caps the database size in pages (PRAGMA max_page_count).
	// Zero leaves SQLite's default.
	MaxPageCount int
}

// SQLiteStore is the SQLite-backed data store.
// Thread-safe; all mutations are serialized through mu on a single connection.
type SQLiteStore struct {
	mu      sync.RWMutex
	db      *sql.DB
	version int
}

// NewSQLiteStore creates a new in-memory SQLite store at the latest schema.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN creates a store with a specific data source name.
// Use ":memory:" for in-memory or a file path for persistent storage.
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	return Open(Options{Path: dsn})
}

// Open opens (creating if needed) the database at opts.Path and applies every
// pending migration up to opts.SchemaVersion. Existing rows are never touched.
func Open(opts Options) (*SQLiteStore, error) {
	target := opts.SchemaVersion
	if target == 0 {
		target = LatestSchemaVersion
	}
	if target < 0 || target > LatestSchemaVersion {
		return nil, fmt.Errorf("unknown schema version %d (latest is %d)", target, LatestSchemaVersion)
	}
	if opts.Path == "" {
		opts.Path = ":memory:"
	}

	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database is private to its connection, and
	// the store is a single logical writer anyway.
	db.SetMaxOpenConns(1)

	version, err := migrateDB(db, target)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	if opts.MaxPageCount > 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA max_page_count = %d", opts.MaxPageCount)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set max_page_count: %w", err)
		}
	}

	return &SQLiteStore{db: db, version: version}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SchemaVersion returns the version the database was opened at.
func (s *SQLiteStore) SchemaVersion() int {
	return s.version
}

func (s *SQLiteStore) require(since int, collection string) error {
	if s.version < since {
		return fmt.Errorf("%w: %s needs v%d, store is v%d", ErrCollectionUnavailable, collection, since, s.version)
	}
	return nil
}

// Wipe empties every collection and vacuums the file.
func (s *SQLiteStore) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []struct {
		name  string
		since int
	}{
		{"stories", storiesSince},
		{"media", mediaSince},
		{"contacts", contactsSince},
		{"locations", locationsSince},
	}
	for _, t := range tables {
		if s.version < t.since {
			continue
		}
		if _, err := s.db.Exec("DELETE FROM " + t.name); err != nil {
			return fmt.Errorf("wipe %s: %w", t.name, err)
		}
	}
	if _, err := s.db.Exec("DELETE FROM sqlite_sequence"); err != nil {
		return fmt.Errorf("wipe sequences: %w", err)
	}
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// =============================================================================
// Story CRUD
// =============================================================================

const storyColumns = `id, uuid, headline, status, created_at, updated_at, template_snapshot, answers`

// AddStory inserts a story and assigns story.ID.
func (s *SQLiteStore) AddStory(story *Story) (int64, error) {
	if err := story.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := story.Clone()
	rec.normalize()
	snapshot, answers, err := encodeStoryJSON(rec)
	if err != nil {
		return 0, err
	}

	res, err := s.db.Exec(`
		INSERT INTO stories (uuid, headline, status, created_at, updated_at, template_snapshot, answers)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.UUID, rec.Headline, string(rec.Status), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
		snapshot, answers)
	if errors.Is(err, sqlite3.CONSTRAINT_UNIQUE) {
		return 0, fmt.Errorf("%w: uuid %s already stored", ErrInvalidStory, rec.UUID)
	}
	if err != nil {
		return 0, mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	story.ID = id
	return id, nil
}

// GetStory retrieves a story by surrogate id. Returns nil, nil when absent.
func (s *SQLiteStore) GetStory(id int64) (*Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getStory("id = ?", id)
}

// GetStoryByUUID retrieves a story by its external uuid. Returns nil, nil when absent.
func (s *SQLiteStore) GetStoryByUUID(uuid string) (*Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getStory("uuid = ?", uuid)
}

func (s *SQLiteStore) getStory(where string, arg any) (*Story, error) {
	story, err := scanStory(s.db.QueryRow(`SELECT `+storyColumns+` FROM stories WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return story, nil
}

// UpdateStory applies patch to the story with the given id.
func (s *SQLiteStore) UpdateStory(id int64, patch StoryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	story, err := s.getStory("id = ?", id)
	if err != nil {
		return err
	}
	if story == nil {
		return fmt.Errorf("story %d: %w", id, ErrNotFound)
	}
	patch.apply(story)
	if err := story.Validate(); err != nil {
		return err
	}
	story.normalize()
	snapshot, answers, err := encodeStoryJSON(story)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		UPDATE stories SET headline = ?, status = ?, updated_at = ?, template_snapshot = ?, answers = ?
		WHERE id = ?
	`, story.Headline, string(story.Status), formatTime(story.UpdatedAt), snapshot, answers, id)
	return mapError(err)
}

// PutStory replaces the story with the same uuid, inserting it if absent.
// story.ID is set to the stored id.
func (s *SQLiteStore) PutStory(story *Story) error {
	if err := story.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := story.Clone()
	rec.normalize()
	snapshot, answers, err := encodeStoryJSON(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO stories (uuid, headline, status, created_at, updated_at, template_snapshot, answers)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			headline = excluded.headline,
			status = excluded.status,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			template_snapshot = excluded.template_snapshot,
			answers = excluded.answers
	`, rec.UUID, rec.Headline, string(rec.Status), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
		snapshot, answers)
	if err != nil {
		return mapError(err)
	}
	return s.db.QueryRow(`SELECT id FROM stories WHERE uuid = ?`, rec.UUID).Scan(&story.ID)
}

// DeleteStory removes one story. Media, contacts and locations are left in place.
func (s *SQLiteStore) DeleteStory(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM stories WHERE id = ?", id)
	return err
}

// ListStories returns stories matching filter.
func (s *SQLiteStore) ListStories(filter StoryFilter) ([]*Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.UUID != "" {
		where = append(where, "uuid = ?")
		args = append(args, filter.UUID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	order := "id"
	if filter.SortByUpdated {
		order = "updated_at, id"
		if filter.Desc {
			order = "updated_at DESC, id DESC"
		}
	}

	rows, err := s.db.Query(`SELECT `+storyColumns+` FROM stories`+whereClause(where)+` ORDER BY `+order, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []*Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, story)
	}
	return stories, rows.Err()
}

// ClearStories empties the stories collection.
func (s *SQLiteStore) ClearStories() error {
	return s.clear("stories", storiesSince)
}

// CountStories returns the number of stored stories.
func (s *SQLiteStore) CountStories() (int, error) {
	return s.count("stories", storiesSince)
}

// =============================================================================
// Media CRUD
// =============================================================================

const mediaColumns = `id, story_uuid, type, blob, mime_type, caption, extracted_text, created_at`

// AddMedia stores a media item and its blob, assigning item.ID.
func (s *SQLiteStore) AddMedia(item *MediaItem) (int64, error) {
	if err := s.require(mediaSince, "media"); err != nil {
		return 0, err
	}
	if err := item.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	blob := item.Blob
	if blob == nil {
		blob = []byte{}
	}
	res, err := s.db.Exec(`
		INSERT INTO media (story_uuid, type, blob, mime_type, caption, extracted_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, item.StoryUUID, string(item.Type), blob, item.MimeType, item.Caption,
		nullString(item.ExtractedText), formatTime(item.CreatedAt))
	if err != nil {
		return 0, mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	item.ID = id
	return id, nil
}

func (s *SQLiteStore) GetMedia(id int64) (*MediaItem, error) {
	if err := s.require(mediaSince, "media"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getMedia(id)
}

func (s *SQLiteStore) getMedia(id int64) (*MediaItem, error) {
	item, err := scanMedia(s.db.QueryRow(`SELECT `+mediaColumns+` FROM media WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateMedia patches caption and extracted text. The blob is immutable.
func (s *SQLiteStore) UpdateMedia(id int64, patch MediaPatch) error {
	if err := s.require(mediaSince, "media"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.getMedia(id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("media %d: %w", id, ErrNotFound)
	}
	patch.apply(item)
	_, err = s.db.Exec(`UPDATE media SET caption = ?, extracted_text = ? WHERE id = ?`,
		item.Caption, nullString(item.ExtractedText), id)
	return mapError(err)
}

func (s *SQLiteStore) DeleteMedia(id int64) error {
	if err := s.require(mediaSince, "media"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM media WHERE id = ?", id)
	return err
}

// ListMedia returns media in insertion order, optionally filtered by story and type.
func (s *SQLiteStore) ListMedia(filter MediaFilter) ([]*MediaItem, error) {
	if err := s.require(mediaSince, "media"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.StoryUUID != "" {
		where = append(where, "story_uuid = ?")
		args = append(args, filter.StoryUUID)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}

	rows, err := s.db.Query(`SELECT `+mediaColumns+` FROM media`+whereClause(where)+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*MediaItem
	for rows.Next() {
		item, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) ClearMedia() error {
	return s.clear("media", mediaSince)
}

func (s *SQLiteStore) CountMedia() (int, error) {
	return s.count("media", mediaSince)
}

// =============================================================================
// Contact CRUD
// =============================================================================

const contactColumns = `id, story_uuid, name, role, organization, phone, email, notes, created_at`

func (s *SQLiteStore) AddContact(contact *Contact) (int64, error) {
	if err := s.require(contactsSince, "contacts"); err != nil {
		return 0, err
	}
	if err := contact.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO contacts (story_uuid, name, role, organization, phone, email, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, contact.StoryUUID, contact.Name, contact.Role, contact.Organization, contact.Phone,
		contact.Email, contact.Notes, formatTime(contact.CreatedAt))
	if err != nil {
		return 0, mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	contact.ID = id
	return id, nil
}

func (s *SQLiteStore) GetContact(id int64) (*Contact, error) {
	if err := s.require(contactsSince, "contacts"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getContact(id)
}

func (s *SQLiteStore) getContact(id int64) (*Contact, error) {
	c, err := scanContact(s.db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStore) UpdateContact(id int64, patch ContactPatch) error {
	if err := s.require(contactsSince, "contacts"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.getContact(id)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("contact %d: %w", id, ErrNotFound)
	}
	patch.apply(c)
	if err := c.Validate(); err != nil {
		return err
	}
	_, err = s.db.Exec(`
		UPDATE contacts SET name = ?, role = ?, organization = ?, phone = ?, email = ?, notes = ?
		WHERE id = ?
	`, c.Name, c.Role, c.Organization, c.Phone, c.Email, c.Notes, id)
	return mapError(err)
}

func (s *SQLiteStore) DeleteContact(id int64) error {
	if err := s.require(contactsSince, "contacts"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM contacts WHERE id = ?", id)
	return err
}

// ListContacts returns contacts for a story in insertion order. An empty uuid lists all.
func (s *SQLiteStore) ListContacts(storyUUID string) ([]*Contact, error) {
	if err := s.require(contactsSince, "contacts"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if storyUUID != "" {
		where = append(where, "story_uuid = ?")
		args = append(args, storyUUID)
	}
	rows, err := s.db.Query(`SELECT `+contactColumns+` FROM contacts`+whereClause(where)+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *SQLiteStore) ClearContacts() error {
	return s.clear("contacts", contactsSince)
}

func (s *SQLiteStore) CountContacts() (int, error) {
	return s.count("contacts", contactsSince)
}

// =============================================================================
// Location CRUD
// =============================================================================

const locationColumns = `id, story_uuid, name, address, lat, lng, notes, created_at`

func (s *SQLiteStore) AddLocation(location *Location) (int64, error) {
	if err := s.require(locationsSince, "locations"); err != nil {
		return 0, err
	}
	if err := location.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO locations (story_uuid, name, address, lat, lng, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, location.StoryUUID, location.Name, location.Address, nullFloat(location.Lat), nullFloat(location.Lng),
		location.Notes, formatTime(location.CreatedAt))
	if err != nil {
		return 0, mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	location.ID = id
	return id, nil
}

func (s *SQLiteStore) GetLocation(id int64) (*Location, error) {
	if err := s.require(locationsSince, "locations"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocation(id)
}

func (s *SQLiteStore) getLocation(id int64) (*Location, error) {
	l, err := scanLocation(s.db.QueryRow(`SELECT `+locationColumns+` FROM locations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *SQLiteStore) UpdateLocation(id int64, patch LocationPatch) error {
	if err := s.require(locationsSince, "locations"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.getLocation(id)
	if err != nil {
		return err
	}
	if l == nil {
		return fmt.Errorf("location %d: %w", id, ErrNotFound)
	}
	patch.apply(l)
	if err := l.Validate(); err != nil {
		return err
	}
	_, err = s.db.Exec(`
		UPDATE locations SET name = ?, address = ?, lat = ?, lng = ?, notes = ? WHERE id = ?
	`, l.Name, l.Address, nullFloat(l.Lat), nullFloat(l.Lng), l.Notes, id)
	return mapError(err)
}

func (s *SQLiteStore) DeleteLocation(id int64) error {
	if err := s.require(locationsSince, "locations"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM locations WHERE id = ?", id)
	return err
}

// ListLocations returns locations for a story in insertion order. An empty uuid lists all.
func (s *SQLiteStore) ListLocations(storyUUID string) ([]*Location, error) {
	if err := s.require(locationsSince, "locations"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if storyUUID != "" {
		where = append(where, "story_uuid = ?")
		args = append(args, storyUUID)
	}
	rows, err := s.db.Query(`SELECT `+locationColumns+` FROM locations`+whereClause(where)+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []*Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (s *SQLiteStore) ClearLocations() error {
	return s.clear("locations", locationsSince)
}

func (s *SQLiteStore) CountLocations() (int, error) {
	return s.count("locations", locationsSince)
}

// =============================================================================
// Helpers
// =============================================================================

func (s *SQLiteStore) clear(table string, since int) error {
	if err := s.require(since, table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM " + table)
	return err
}

func (s *SQLiteStore) count(table string, since int) (int, error) {
	if err := s.require(since, table); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
	return count, err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (*Story, error) {
	var story Story
	var status, createdAt, updatedAt, snapshot, answers string
	if err := row.Scan(&story.ID, &story.UUID, &story.Headline, &status,
		&createdAt, &updatedAt, &snapshot, &answers); err != nil {
		return nil, err
	}
	story.Status = Status(status)

	var err error
	if story.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if story.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(snapshot), &story.TemplateSnapshot); err != nil {
		return nil, fmt.Errorf("story %s: decode template snapshot: %w", story.UUID, err)
	}
	if err := json.Unmarshal([]byte(answers), &story.Answers); err != nil {
		return nil, fmt.Errorf("story %s: decode answers: %w", story.UUID, err)
	}
	if story.Answers == nil {
		story.Answers = map[string]Answer{}
	}
	return &story, nil
}

func scanMedia(row rowScanner) (*MediaItem, error) {
	var item MediaItem
	var typ, createdAt string
	var extracted sql.NullString
	if err := row.Scan(&item.ID, &item.StoryUUID, &typ, &item.Blob, &item.MimeType,
		&item.Caption, &extracted, &createdAt); err != nil {
		return nil, err
	}
	item.Type = MediaType(typ)
	item.ExtractedText = extracted.String
	if item.Blob == nil {
		item.Blob = []byte{}
	}
	var err error
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &item, nil
}

func scanContact(row rowScanner) (*Contact, error) {
	var c Contact
	var createdAt string
	if err := row.Scan(&c.ID, &c.StoryUUID, &c.Name, &c.Role, &c.Organization,
		&c.Phone, &c.Email, &c.Notes, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanLocation(row rowScanner) (*Location, error) {
	var l Location
	var lat, lng sql.NullFloat64
	var createdAt string
	if err := row.Scan(&l.ID, &l.StoryUUID, &l.Name, &l.Address, &lat, &lng,
		&l.Notes, &createdAt); err != nil {
		return nil, err
	}
	if lat.Valid {
		l.Lat = &lat.Float64
	}
	if lng.Valid {
		l.Lng = &lng.Float64
	}
	var err error
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func encodeStoryJSON(story *Story) (snapshot, answers string, err error) {
	sb, err := json.Marshal(story.TemplateSnapshot)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal template snapshot: %w", err)
	}
	ab, err := json.Marshal(story.Answers)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal answers: %w", err)
	}
	return string(sb), string(ab), nil
}

// mapError translates SQLITE_FULL into ErrStorageQuotaExceeded.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sqlite3.FULL) {
		return fmt.Errorf("%w: %v", ErrStorageQuotaExceeded, err)
	}
	return err
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func formatTime(t time.Time) string {
	return NormalizeTime(t).Format(TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
