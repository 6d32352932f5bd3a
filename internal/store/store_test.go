package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Store Factory for Testing Both Implementations
// =============================================================================

// storeFactory creates a store for testing.
// We test both MemStore and SQLiteStore with the same test suite.
type storeFactory func() (Storer, error)

func memStoreFactory() (Storer, error) {
	return NewMemStore(), nil
}

func sqliteStoreFactory() (Storer, error) {
	return NewSQLiteStore()
}

// runTestsForAllStores runs a test function against both store implementations.
func runTestsForAllStores(t *testing.T, testName string, testFn func(t *testing.T, store Storer)) {
	factories := map[string]storeFactory{
		"MemStore":    memStoreFactory,
		"SQLiteStore": sqliteStoreFactory,
	}

	for name, factory := range factories {
		t.Run(name+"/"+testName, func(t *testing.T) {
			store, err := factory()
			require.NoError(t, err, "Failed to create store")
			defer store.Close()
			testFn(t, store)
		})
	}
}

var testNow = time.Date(2023, 10, 27, 9, 30, 0, 123_000_000, time.UTC)

func testTemplate() Template {
	return Template{
		ID:          "corruption",
		CategoryID:  "investigations",
		Name:        "Corruption Investigation",
		Description: "Follow the money",
		Questions: []Question{
			{ID: "q1", Text: "Who is involved?", Type: QuestionText, Required: true},
			{ID: "tip", Text: "Always verify documents", Type: QuestionNote, IsTip: true},
			{ID: "q2", Text: "Documents obtained?", Type: QuestionCheckbox},
		},
	}
}

func newTestStory(uuid string) *Story {
	return &Story{
		UUID:             uuid,
		Headline:         "New Corruption Investigation",
		Status:           StatusDraft,
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
		TemplateSnapshot: testTemplate(),
		Answers: map[string]Answer{
			"q1": {QuestionID: "q1", Value: TextValue("The mayor"), UpdatedAt: testNow},
			"q2": {QuestionID: "q2", Value: BoolValue(true), UpdatedAt: testNow},
		},
	}
}

// =============================================================================
// Store Initialization Tests
// =============================================================================

func TestStoreCreation(t *testing.T) {
	runTestsForAllStores(t, "Creation", func(t *testing.T, store Storer) {
		require.NotNil(t, store, "Store should not be nil")
		assert.Equal(t, LatestSchemaVersion, store.SchemaVersion())
	})
}

// =============================================================================
// Story Tests
// =============================================================================

func TestStoryAddAndGet(t *testing.T) {
	runTestsForAllStores(t, "AddAndGet", func(t *testing.T, store Storer) {
		story := newTestStory("story-1")

		id, err := store.AddStory(story)
		require.NoError(t, err, "AddStory should not error")
		assert.NotZero(t, id)
		assert.Equal(t, id, story.ID, "AddStory should assign the id")

		retrieved, err := store.GetStory(id)
		require.NoError(t, err)
		require.NotNil(t, retrieved)
		assert.Equal(t, story, retrieved)

		byUUID, err := store.GetStoryByUUID("story-1")
		require.NoError(t, err)
		require.NotNil(t, byUUID)
		assert.Equal(t, id, byUUID.ID)
		assert.True(t, byUUID.Answers["q2"].Value.Bool())
		assert.Equal(t, "The mayor", byUUID.Answers["q1"].Value.String())
	})
}

func TestStoryGetNotFound(t *testing.T) {
	runTestsForAllStores(t, "GetNotFound", func(t *testing.T, store Storer) {
		story, err := store.GetStory(999)
		require.NoError(t, err, "GetStory for nonexistent should not error")
		assert.Nil(t, story)

		story, err = store.GetStoryByUUID("nope")
		require.NoError(t, err)
		assert.Nil(t, story)
	})
}

func TestStoryReturnsCopies(t *testing.T) {
	runTestsForAllStores(t, "ReturnsCopies", func(t *testing.T, store Storer) {
		story := newTestStory("story-1")
		id, err := store.AddStory(story)
		require.NoError(t, err)

		story.Headline = "mutated by caller"
		story.TemplateSnapshot.Questions[0].Text = "mutated"

		got, err := store.GetStory(id)
		require.NoError(t, err)
		got.Answers["q1"] = Answer{QuestionID: "q1", Value: TextValue("also mutated")}

		again, err := store.GetStory(id)
		require.NoError(t, err)
		assert.Equal(t, "New Corruption Investigation", again.Headline)
		assert.Equal(t, "Who is involved?", again.TemplateSnapshot.Questions[0].Text)
		assert.Equal(t, "The mayor", again.Answers["q1"].Value.String())
	})
}

func TestStoryRejectsUnknownAnswerKey(t *testing.T) {
	runTestsForAllStores(t, "RejectsUnknownAnswerKey", func(t *testing.T, store Storer) {
		story := newTestStory("story-1")
		story.Answers["ghost"] = Answer{QuestionID: "ghost", Value: TextValue("boo")}

		_, err := store.AddStory(story)
		assert.ErrorIs(t, err, ErrInvalidStory)

		count, err := store.CountStories()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestStoryRejectsDuplicateUUID(t *testing.T) {
	runTestsForAllStores(t, "RejectsDuplicateUUID", func(t *testing.T, store Storer) {
		_, err := store.AddStory(newTestStory("story-1"))
		require.NoError(t, err)

		_, err = store.AddStory(newTestStory("story-1"))
		assert.ErrorIs(t, err, ErrInvalidStory)
	})
}

func TestStoryUpdate(t *testing.T) {
	runTestsForAllStores(t, "Update", func(t *testing.T, store Storer) {
		id, err := store.AddStory(newTestStory("story-1"))
		require.NoError(t, err)

		headline := "Mayor under investigation"
		status := StatusComplete
		later := testNow.Add(time.Minute)
		err = store.UpdateStory(id, StoryPatch{
			Headline:  &headline,
			Status:    &status,
			Answers:   map[string]Answer{"q1": {QuestionID: "q1", Value: TextValue("The deputy mayor"), UpdatedAt: later}},
			UpdatedAt: &later,
		})
		require.NoError(t, err)

		got, err := store.GetStory(id)
		require.NoError(t, err)
		assert.Equal(t, headline, got.Headline)
		assert.Equal(t, StatusComplete, got.Status)
		assert.Equal(t, later, got.UpdatedAt)
		assert.Equal(t, testNow, got.CreatedAt)
		assert.Equal(t, "The deputy mayor", got.Answers["q1"].Value.String())
		assert.True(t, got.Answers["q2"].Value.Bool(), "untouched answers survive a merge")
	})
}

func TestStoryUpdateNotFound(t *testing.T) {
	runTestsForAllStores(t, "UpdateNotFound", func(t *testing.T, store Storer) {
		headline := "x"
		err := store.UpdateStory(42, StoryPatch{Headline: &headline})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStoryUpdateRejectsInvalidPatch(t *testing.T) {
	runTestsForAllStores(t, "UpdateRejectsInvalidPatch", func(t *testing.T, store Storer) {
		id, err := store.AddStory(newTestStory("story-1"))
		require.NoError(t, err)

		bad := Status("archived")
		err = store.UpdateStory(id, StoryPatch{Status: &bad})
		assert.ErrorIs(t, err, ErrInvalidStory)

		got, err := store.GetStory(id)
		require.NoError(t, err)
		assert.Equal(t, StatusDraft, got.Status)
	})
}

func TestStoryPut(t *testing.T) {
	runTestsForAllStores(t, "Put", func(t *testing.T, store Storer) {
		story := newTestStory("story-1")
		require.NoError(t, store.PutStory(story), "PutStory should insert when absent")
		firstID := story.ID
		assert.NotZero(t, firstID)

		story.Headline = "Replaced"
		story.Answers["q1"] = Answer{QuestionID: "q1", Value: TextValue("")}
		require.NoError(t, store.PutStory(story))
		assert.Equal(t, firstID, story.ID, "PutStory keeps the id of the existing record")

		got, err := store.GetStoryByUUID("story-1")
		require.NoError(t, err)
		assert.Equal(t, "Replaced", got.Headline)
		assert.False(t, got.Answers["q1"].Value.Answered())

		count, err := store.CountStories()
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestStoryList(t *testing.T) {
	runTestsForAllStores(t, "List", func(t *testing.T, store Storer) {
		for i, uuid := range []string{"a", "b", "c"} {
			story := newTestStory(uuid)
			story.UpdatedAt = testNow.Add(time.Duration(3-i) * time.Hour)
			if uuid == "b" {
				story.Status = StatusComplete
			}
			_, err := store.AddStory(story)
			require.NoError(t, err)
		}

		all, err := store.ListStories(StoryFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, storyUUIDs(all), "insertion order by default")

		byUpdated, err := store.ListStories(StoryFilter{SortByUpdated: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b", "a"}, storyUUIDs(byUpdated))

		newest, err := store.ListStories(StoryFilter{SortByUpdated: true, Desc: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, storyUUIDs(newest))

		drafts, err := store.ListStories(StoryFilter{Status: StatusDraft})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, storyUUIDs(drafts))

		one, err := store.ListStories(StoryFilter{UUID: "b"})
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, storyUUIDs(one))
	})
}

func TestStoryDeleteDoesNotCascade(t *testing.T) {
	runTestsForAllStores(t, "DeleteDoesNotCascade", func(t *testing.T, store Storer) {
		id, err := store.AddStory(newTestStory("story-1"))
		require.NoError(t, err)
		_, err = store.AddMedia(&MediaItem{StoryUUID: "story-1", Type: MediaPhoto, Blob: []byte{1}, MimeType: "image/jpeg", CreatedAt: testNow})
		require.NoError(t, err)
		_, err = store.AddContact(&Contact{StoryUUID: "story-1", Name: "Jane", CreatedAt: testNow})
		require.NoError(t, err)

		require.NoError(t, store.DeleteStory(id))

		got, err := store.GetStory(id)
		require.NoError(t, err)
		assert.Nil(t, got)

		media, err := store.ListMedia(MediaFilter{StoryUUID: "story-1"})
		require.NoError(t, err)
		assert.Len(t, media, 1)
		contacts, err := store.ListContacts("story-1")
		require.NoError(t, err)
		assert.Len(t, contacts, 1)
	})
}

func storyUUIDs(stories []*Story) []string {
	out := make([]string, len(stories))
	for i, s := range stories {
		out[i] = s.UUID
	}
	return out
}

// =============================================================================
// Media Tests
// =============================================================================

func TestMediaAddGetAndPatch(t *testing.T) {
	runTestsForAllStores(t, "MediaAddGetAndPatch", func(t *testing.T, store Storer) {
		blob := []byte{0xff, 0xd8, 0x00, 0x10, 0x4a, 0x46}
		item := &MediaItem{
			StoryUUID: "story-1",
			Type:      MediaDocument,
			Blob:      blob,
			MimeType:  "image/jpeg",
			Caption:   "Invoice",
			CreatedAt: testNow,
		}
		id, err := store.AddMedia(item)
		require.NoError(t, err)

		blob[0] = 0x00 // caller mutation must not leak into the store

		got, err := store.GetMedia(id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, []byte{0xff, 0xd8, 0x00, 0x10, 0x4a, 0x46}, got.Blob)
		assert.Equal(t, "image/jpeg", got.MimeType)
		assert.Equal(t, testNow, got.CreatedAt)
		assert.Empty(t, got.ExtractedText)

		caption := "Invoice #4411"
		text := "TOTAL DUE 1,000,000"
		require.NoError(t, store.UpdateMedia(id, MediaPatch{Caption: &caption, ExtractedText: &text}))

		got, err = store.GetMedia(id)
		require.NoError(t, err)
		assert.Equal(t, caption, got.Caption)
		assert.Equal(t, text, got.ExtractedText)
		assert.Equal(t, []byte{0xff, 0xd8, 0x00, 0x10, 0x4a, 0x46}, got.Blob)
	})
}

func TestMediaUpdateNotFound(t *testing.T) {
	runTestsForAllStores(t, "MediaUpdateNotFound", func(t *testing.T, store Storer) {
		caption := "x"
		assert.ErrorIs(t, store.UpdateMedia(7, MediaPatch{Caption: &caption}), ErrNotFound)
	})
}

func TestMediaRejectsUnknownType(t *testing.T) {
	runTestsForAllStores(t, "MediaRejectsUnknownType", func(t *testing.T, store Storer) {
		_, err := store.AddMedia(&MediaItem{StoryUUID: "s", Type: "video", CreatedAt: testNow})
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})
}

func TestMediaList(t *testing.T) {
	runTestsForAllStores(t, "MediaList", func(t *testing.T, store Storer) {
		add := func(story string, typ MediaType) {
			_, err := store.AddMedia(&MediaItem{StoryUUID: story, Type: typ, Blob: []byte(story), MimeType: "application/octet-stream", CreatedAt: testNow})
			require.NoError(t, err)
		}
		add("s1", MediaPhoto)
		add("s2", MediaAudio)
		add("s1", MediaAudio)
		add("s1", MediaPhoto)

		items, err := store.ListMedia(MediaFilter{StoryUUID: "s1"})
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, MediaPhoto, items[0].Type)
		assert.Equal(t, MediaAudio, items[1].Type)
		assert.Less(t, items[0].ID, items[2].ID)

		photos, err := store.ListMedia(MediaFilter{StoryUUID: "s1", Type: MediaPhoto})
		require.NoError(t, err)
		assert.Len(t, photos, 2)

		audio, err := store.ListMedia(MediaFilter{Type: MediaAudio})
		require.NoError(t, err)
		assert.Len(t, audio, 2)

		require.NoError(t, store.DeleteMedia(items[0].ID))
		count, err := store.CountMedia()
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})
}

func TestMediaEmptyBlob(t *testing.T) {
	runTestsForAllStores(t, "MediaEmptyBlob", func(t *testing.T, store Storer) {
		id, err := store.AddMedia(&MediaItem{StoryUUID: "s", Type: MediaAudio, MimeType: "audio/webm", CreatedAt: testNow})
		require.NoError(t, err)

		got, err := store.GetMedia(id)
		require.NoError(t, err)
		assert.NotNil(t, got.Blob)
		assert.Empty(t, got.Blob)
	})
}

// =============================================================================
// Contact & Location Tests
// =============================================================================

func TestContactCRUD(t *testing.T) {
	runTestsForAllStores(t, "ContactCRUD", func(t *testing.T, store Storer) {
		contact := &Contact{
			StoryUUID:    "story-1",
			Name:         "Jane Source",
			Role:         "Whistleblower",
			Organization: "City Hall",
			Phone:        "+27 21 555 0100",
			Email:        "jane@example.org",
			Notes:        `He said "stop now"`,
			CreatedAt:    testNow,
		}
		id, err := store.AddContact(contact)
		require.NoError(t, err)

		got, err := store.GetContact(id)
		require.NoError(t, err)
		assert.Equal(t, contact, got)

		role := "Former clerk"
		require.NoError(t, store.UpdateContact(id, ContactPatch{Role: &role}))
		got, err = store.GetContact(id)
		require.NoError(t, err)
		assert.Equal(t, role, got.Role)
		assert.Equal(t, "Jane Source", got.Name)

		empty := "  "
		assert.ErrorIs(t, store.UpdateContact(id, ContactPatch{Name: &empty}), ErrInvalidRecord)
		assert.ErrorIs(t, store.UpdateContact(id+100, ContactPatch{Role: &role}), ErrNotFound)

		_, err = store.AddContact(&Contact{StoryUUID: "story-1", CreatedAt: testNow})
		assert.ErrorIs(t, err, ErrInvalidRecord)

		require.NoError(t, store.DeleteContact(id))
		got, err = store.GetContact(id)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestContactListByStory(t *testing.T) {
	runTestsForAllStores(t, "ContactListByStory", func(t *testing.T, store Storer) {
		for _, c := range []Contact{
			{StoryUUID: "s1", Name: "A"},
			{StoryUUID: "s2", Name: "B"},
			{StoryUUID: "s1", Name: "C"},
		} {
			c.CreatedAt = testNow
			_, err := store.AddContact(&c)
			require.NoError(t, err)
		}

		s1, err := store.ListContacts("s1")
		require.NoError(t, err)
		require.Len(t, s1, 2)
		assert.Equal(t, "A", s1[0].Name)
		assert.Equal(t, "C", s1[1].Name)

		all, err := store.ListContacts("")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestLocationCRUD(t *testing.T) {
	runTestsForAllStores(t, "LocationCRUD", func(t *testing.T, store Storer) {
		lat, lng := -33.9249, 18.4241
		loc := &Location{
			StoryUUID: "story-1",
			Name:      "Civic Centre",
			Address:   "12 Hertzog Blvd",
			Lat:       &lat,
			Lng:       &lng,
			CreatedAt: testNow,
		}
		id, err := store.AddLocation(loc)
		require.NoError(t, err)

		noGPS := &Location{StoryUUID: "story-1", Name: "Basement archive", CreatedAt: testNow}
		noGPSID, err := store.AddLocation(noGPS)
		require.NoError(t, err)

		got, err := store.GetLocation(id)
		require.NoError(t, err)
		assert.Equal(t, loc, got)

		got, err = store.GetLocation(noGPSID)
		require.NoError(t, err)
		assert.Nil(t, got.Lat)
		assert.Nil(t, got.Lng)

		notes := "Side entrance after 5pm"
		newLat := -33.9
		require.NoError(t, store.UpdateLocation(noGPSID, LocationPatch{Notes: &notes, Lat: &newLat}))
		got, err = store.GetLocation(noGPSID)
		require.NoError(t, err)
		assert.Equal(t, notes, got.Notes)
		require.NotNil(t, got.Lat)
		assert.InDelta(t, newLat, *got.Lat, 1e-9)

		list, err := store.ListLocations("story-1")
		require.NoError(t, err)
		assert.Len(t, list, 2)

		_, err = store.AddLocation(&Location{StoryUUID: "story-1"})
		assert.ErrorIs(t, err, ErrInvalidRecord)
		assert.ErrorIs(t, store.UpdateLocation(999, LocationPatch{Notes: &notes}), ErrNotFound)
	})
}

// =============================================================================
// Bulk operations
// =============================================================================

func populate(t *testing.T, store Storer) {
	t.Helper()
	_, err := store.AddStory(newTestStory("s1"))
	require.NoError(t, err)
	_, err = store.AddStory(newTestStory("s2"))
	require.NoError(t, err)
	_, err = store.AddMedia(&MediaItem{StoryUUID: "s1", Type: MediaPhoto, Blob: []byte("jpeg"), MimeType: "image/jpeg", CreatedAt: testNow})
	require.NoError(t, err)
	_, err = store.AddContact(&Contact{StoryUUID: "s1", Name: "Jane", CreatedAt: testNow})
	require.NoError(t, err)
	_, err = store.AddLocation(&Location{StoryUUID: "s1", Name: "Court", CreatedAt: testNow})
	require.NoError(t, err)
}

func counts(t *testing.T, store Storer) [4]int {
	t.Helper()
	var c [4]int
	var err error
	c[0], err = store.CountStories()
	require.NoError(t, err)
	c[1], err = store.CountMedia()
	require.NoError(t, err)
	c[2], err = store.CountContacts()
	require.NoError(t, err)
	c[3], err = store.CountLocations()
	require.NoError(t, err)
	return c
}

func TestClearIsPerCollection(t *testing.T) {
	runTestsForAllStores(t, "ClearIsPerCollection", func(t *testing.T, store Storer) {
		populate(t, store)
		assert.Equal(t, [4]int{2, 1, 1, 1}, counts(t, store))

		require.NoError(t, store.ClearStories())
		assert.Equal(t, [4]int{0, 1, 1, 1}, counts(t, store))

		require.NoError(t, store.ClearMedia())
		require.NoError(t, store.ClearContacts())
		require.NoError(t, store.ClearLocations())
		assert.Equal(t, [4]int{0, 0, 0, 0}, counts(t, store))
	})
}

func TestWipe(t *testing.T) {
	runTestsForAllStores(t, "Wipe", func(t *testing.T, store Storer) {
		populate(t, store)
		require.NoError(t, store.Wipe())
		assert.Equal(t, [4]int{0, 0, 0, 0}, counts(t, store))

		// The store stays usable after a wipe.
		_, err := store.AddStory(newTestStory("after"))
		require.NoError(t, err)
	})
}

func TestMemStoreQuota(t *testing.T) {
	store := NewMemStoreWithQuota(8)

	_, err := store.AddMedia(&MediaItem{StoryUUID: "s", Type: MediaAudio, Blob: make([]byte, 6), CreatedAt: testNow})
	require.NoError(t, err)

	_, err = store.AddMedia(&MediaItem{StoryUUID: "s", Type: MediaAudio, Blob: make([]byte, 6), CreatedAt: testNow})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageQuotaExceeded))

	count, err := store.CountMedia()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.ClearMedia())
	_, err = store.AddMedia(&MediaItem{StoryUUID: "s", Type: MediaAudio, Blob: make([]byte, 6), CreatedAt: testNow})
	assert.NoError(t, err, "clearing media releases quota")
}
