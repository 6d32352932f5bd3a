package store

import (
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory implementation of Storer. It always exposes the
// latest schema. Records are copied on the way in and on the way out.
type MemStore struct {
	mu        sync.RWMutex
	nextID    map[string]int64
	stories   map[int64]*Story
	media     map[int64]*MediaItem
	contacts  map[int64]*Contact
	locations map[int64]*Location

	maxBlobBytes int64
	blobBytes    int64
}

// NewMemStore creates a new in-memory store with no quota.
func NewMemStore() *MemStore {
	return &MemStore{
		nextID:    make(map[string]int64),
		stories:   make(map[int64]*Story),
		media:     make(map[int64]*MediaItem),
		contacts:  make(map[int64]*Contact),
		locations: make(map[int64]*Location),
	}
}

// NewMemStoreWithQuota creates a store whose media blobs may total at most
// maxBlobBytes; further AddMedia calls fail with ErrStorageQuotaExceeded.
func NewMemStoreWithQuota(maxBlobBytes int64) *MemStore {
	s := NewMemStore()
	s.maxBlobBytes = maxBlobBytes
	return s
}

// Close is a no-op for MemStore.
func (s *MemStore) Close() error {
	return nil
}

func (s *MemStore) SchemaVersion() int {
	return LatestSchemaVersion
}

func (s *MemStore) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID = make(map[string]int64)
	s.stories = make(map[int64]*Story)
	s.media = make(map[int64]*MediaItem)
	s.contacts = make(map[int64]*Contact)
	s.locations = make(map[int64]*Location)
	s.blobBytes = 0
	return nil
}

func (s *MemStore) allocID(collection string) int64 {
	s.nextID[collection]++
	return s.nextID[collection]
}

// sortedIDs returns the keys of m in ascending order, which is insertion order.
func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// =============================================================================
// Story CRUD
// =============================================================================

func (s *MemStore) AddStory(story *Story) (int64, error) {
	if err := story.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findStory(story.UUID) != nil {
		return 0, fmt.Errorf("%w: uuid %s already stored", ErrInvalidStory, story.UUID)
	}
	rec := story.Clone()
	rec.normalize()
	rec.ID = s.allocID("stories")
	s.stories[rec.ID] = rec
	story.ID = rec.ID
	return rec.ID, nil
}

func (s *MemStore) GetStory(id int64) (*Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if story, ok := s.stories[id]; ok {
		return story.Clone(), nil
	}
	return nil, nil
}

func (s *MemStore) GetStoryByUUID(uuid string) (*Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.findStory(uuid).Clone(), nil
}

func (s *MemStore) findStory(uuid string) *Story {
	for _, story := range s.stories {
		if story.UUID == uuid {
			return story
		}
	}
	return nil
}

func (s *MemStore) UpdateStory(id int64, patch StoryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.stories[id]
	if !ok {
		return fmt.Errorf("story %d: %w", id, ErrNotFound)
	}
	next := current.Clone()
	patch.apply(next)
	if err := next.Validate(); err != nil {
		return err
	}
	next.normalize()
	s.stories[id] = next
	return nil
}

func (s *MemStore) PutStory(story *Story) error {
	if err := story.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := story.Clone()
	rec.normalize()
	if existing := s.findStory(story.UUID); existing != nil {
		rec.ID = existing.ID
	} else {
		rec.ID = s.allocID("stories")
	}
	s.stories[rec.ID] = rec
	story.ID = rec.ID
	return nil
}

func (s *MemStore) DeleteStory(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.stories, id)
	return nil
}

func (s *MemStore) ListStories(filter StoryFilter) ([]*Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Story
	for _, id := range sortedIDs(s.stories) {
		story := s.stories[id]
		if filter.UUID != "" && story.UUID != filter.UUID {
			continue
		}
		if filter.Status != "" && story.Status != filter.Status {
			continue
		}
		result = append(result, story.Clone())
	}

	if filter.SortByUpdated {
		sort.SliceStable(result, func(i, j int) bool {
			a, b := result[i], result[j]
			if filter.Desc {
				a, b = b, a
			}
			if a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.ID < b.ID
			}
			return a.UpdatedAt.Before(b.UpdatedAt)
		})
	}
	return result, nil
}

func (s *MemStore) ClearStories() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stories = make(map[int64]*Story)
	return nil
}

func (s *MemStore) CountStories() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stories), nil
}

// =============================================================================
// Media CRUD
// =============================================================================

func (s *MemStore) AddMedia(item *MediaItem) (int64, error) {
	if err := item.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	size := int64(len(item.Blob))
	if s.maxBlobBytes > 0 && s.blobBytes+size > s.maxBlobBytes {
		return 0, fmt.Errorf("%w: %d of %d blob bytes in use", ErrStorageQuotaExceeded, s.blobBytes, s.maxBlobBytes)
	}
	rec := item.Clone()
	if rec.Blob == nil {
		rec.Blob = []byte{}
	}
	rec.CreatedAt = NormalizeTime(rec.CreatedAt)
	rec.ID = s.allocID("media")
	s.media[rec.ID] = rec
	s.blobBytes += size
	item.ID = rec.ID
	return rec.ID, nil
}

func (s *MemStore) GetMedia(id int64) (*MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item, ok := s.media[id]; ok {
		return item.Clone(), nil
	}
	return nil, nil
}

func (s *MemStore) UpdateMedia(id int64, patch MediaPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.media[id]
	if !ok {
		return fmt.Errorf("media %d: %w", id, ErrNotFound)
	}
	patch.apply(item)
	return nil
}

func (s *MemStore) DeleteMedia(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.media[id]; ok {
		s.blobBytes -= int64(len(item.Blob))
		delete(s.media, id)
	}
	return nil
}

func (s *MemStore) ListMedia(filter MediaFilter) ([]*MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*MediaItem
	for _, id := range sortedIDs(s.media) {
		item := s.media[id]
		if filter.StoryUUID != "" && item.StoryUUID != filter.StoryUUID {
			continue
		}
		if filter.Type != "" && item.Type != filter.Type {
			continue
		}
		result = append(result, item.Clone())
	}
	return result, nil
}

func (s *MemStore) ClearMedia() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.media = make(map[int64]*MediaItem)
	s.blobBytes = 0
	return nil
}

func (s *MemStore) CountMedia() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.media), nil
}

// =============================================================================
// Contact CRUD
// =============================================================================

func (s *MemStore) AddContact(contact *Contact) (int64, error) {
	if err := contact.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *contact
	rec.CreatedAt = NormalizeTime(rec.CreatedAt)
	rec.ID = s.allocID("contacts")
	s.contacts[rec.ID] = &rec
	contact.ID = rec.ID
	return rec.ID, nil
}

func (s *MemStore) GetContact(id int64) (*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.contacts[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, nil
}

func (s *MemStore) UpdateContact(id int64, patch ContactPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok {
		return fmt.Errorf("contact %d: %w", id, ErrNotFound)
	}
	next := *c
	patch.apply(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	s.contacts[id] = &next
	return nil
}

func (s *MemStore) DeleteContact(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.contacts, id)
	return nil
}

func (s *MemStore) ListContacts(storyUUID string) ([]*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Contact
	for _, id := range sortedIDs(s.contacts) {
		c := s.contacts[id]
		if storyUUID == "" || c.StoryUUID == storyUUID {
			copy := *c
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (s *MemStore) ClearContacts() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contacts = make(map[int64]*Contact)
	return nil
}

func (s *MemStore) CountContacts() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contacts), nil
}

// =============================================================================
// Location CRUD
// =============================================================================

func (s *MemStore) AddLocation(location *Location) (int64, error) {
	if err := location.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := location.Clone()
	rec.CreatedAt = NormalizeTime(rec.CreatedAt)
	rec.ID = s.allocID("locations")
	s.locations[rec.ID] = rec
	location.ID = rec.ID
	return rec.ID, nil
}

func (s *MemStore) GetLocation(id int64) (*Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.locations[id]; ok {
		return l.Clone(), nil
	}
	return nil, nil
}

func (s *MemStore) UpdateLocation(id int64, patch LocationPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locations[id]
	if !ok {
		return fmt.Errorf("location %d: %w", id, ErrNotFound)
	}
	next := l.Clone()
	patch.apply(next)
	if err := next.Validate(); err != nil {
		return err
	}
	s.locations[id] = next
	return nil
}

func (s *MemStore) DeleteLocation(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.locations, id)
	return nil
}

func (s *MemStore) ListLocations(storyUUID string) ([]*Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Location
	for _, id := range sortedIDs(s.locations) {
		l := s.locations[id]
		if storyUUID == "" || l.StoryUUID == storyUUID {
			result = append(result, l.Clone())
		}
	}
	return result, nil
}

func (s *MemStore) ClearLocations() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locations = make(map[int64]*Location)
	return nil
}

func (s *MemStore) CountLocations() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.locations), nil
}
