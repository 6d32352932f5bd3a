package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adieyal/pocketreporter2/internal/files"
	"github.com/adieyal/pocketreporter2/internal/store"
	"github.com/adieyal/pocketreporter2/pkg/blobcodec"
)

var testNow = time.Date(2023, 10, 27, 9, 30, 0, 123_000_000, time.UTC)

func testStory(uuid string) *store.Story {
	return &store.Story{
		UUID:      uuid,
		Headline:  "Corruption: Case #12!!",
		Status:    store.StatusDraft,
		CreatedAt: testNow,
		UpdatedAt: testNow.Add(time.Hour),
		TemplateSnapshot: store.Template{
			ID:   "corruption",
			Name: "Corruption Investigation",
			Questions: []store.Question{
				{ID: "q1", Text: "Who?", Type: store.QuestionText, Required: true},
				{ID: "q2", Text: "Documents?", Type: store.QuestionCheckbox},
			},
		},
		Answers: map[string]store.Answer{
			"q1": {QuestionID: "q1", Value: store.TextValue("The mayor"), UpdatedAt: testNow},
			"q2": {QuestionID: "q2", Value: store.BoolValue(true), UpdatedAt: testNow},
		},
	}
}

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func seed(t *testing.T, st store.Storer) {
	t.Helper()
	_, err := st.AddStory(testStory("s1"))
	require.NoError(t, err)
	_, err = st.AddStory(testStory("s2"))
	require.NoError(t, err)
	_, err = st.AddMedia(&store.MediaItem{StoryUUID: "s1", Type: store.MediaPhoto, Blob: jpeg, MimeType: "image/jpeg", Caption: "Front page", CreatedAt: testNow})
	require.NoError(t, err)
	_, err = st.AddMedia(&store.MediaItem{StoryUUID: "s1", Type: store.MediaDocument, Blob: []byte("%PDF"), MimeType: "application/pdf", ExtractedText: "INVOICE", CreatedAt: testNow})
	require.NoError(t, err)
	lat, lng := -33.92, 18.42
	_, err = st.AddContact(&store.Contact{StoryUUID: "s1", Name: "Jane", Notes: `He said "stop now"`, CreatedAt: testNow})
	require.NoError(t, err)
	_, err = st.AddLocation(&store.Location{StoryUUID: "s1", Name: "Civic Centre", Lat: &lat, Lng: &lng, CreatedAt: testNow})
	require.NoError(t, err)
}

func newService(st store.Storer) *Service {
	svc := NewService(st)
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestExportDocumentShape(t *testing.T) {
	st := store.NewMemStore()
	seed(t, st)

	doc, err := newService(st).Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DocumentVersion, doc.Version)
	assert.Equal(t, testNow, doc.ExportedAt)
	assert.Equal(t, Counts{Stories: 2, Media: 2, Contacts: 1, Locations: 1}, doc.Counts())

	data, err := Marshal(doc)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.EqualValues(t, 1, generic["version"])
	media := generic["media"].([]any)[0].(map[string]any)
	assert.Equal(t, blobcodec.Encode(jpeg, "").Text, media["blobBase64"])
	assert.Equal(t, "image/jpeg", media["mimeType"])
	assert.NotContains(t, media, "blob")
}

func TestExportEmptyStoreWritesEmptyArrays(t *testing.T) {
	doc, err := newService(store.NewMemStore()).Export(context.Background())
	require.NoError(t, err)

	data, err := Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stories": []`)
	assert.Contains(t, string(data), `"media": []`)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Counts{}, parsed.Counts())
}

func TestRoundTrip(t *testing.T) {
	for name, open := range map[string]func() (store.Storer, error){
		"MemStore":    func() (store.Storer, error) { return store.NewMemStore(), nil },
		"SQLiteStore": func() (store.Storer, error) { return store.NewSQLiteStore() },
	} {
		t.Run(name, func(t *testing.T) {
			src, err := open()
			require.NoError(t, err)
			defer src.Close()
			seed(t, src)

			doc, err := newService(src).Export(context.Background())
			require.NoError(t, err)
			data, err := Marshal(doc)
			require.NoError(t, err)

			dst, err := open()
			require.NoError(t, err)
			defer dst.Close()
			_, err = dst.AddStory(testStory("doomed"))
			require.NoError(t, err)

			counts, err := newService(dst).ImportBytes(context.Background(), data)
			require.NoError(t, err)
			assert.Equal(t, Counts{Stories: 2, Media: 2, Contacts: 1, Locations: 1}, counts)

			wantStories, _ := src.ListStories(store.StoryFilter{})
			gotStories, err := dst.ListStories(store.StoryFilter{})
			require.NoError(t, err)
			require.Len(t, gotStories, len(wantStories))
			for i := range wantStories {
				want, got := wantStories[i], gotStories[i]
				want.ID, got.ID = 0, 0
				assert.Equal(t, want, got)
			}

			wantMedia, _ := src.ListMedia(store.MediaFilter{})
			gotMedia, err := dst.ListMedia(store.MediaFilter{})
			require.NoError(t, err)
			require.Len(t, gotMedia, 2)
			for i := range wantMedia {
				assert.Equal(t, wantMedia[i].Blob, gotMedia[i].Blob, "blobs must be byte-identical")
				assert.Equal(t, wantMedia[i].MimeType, gotMedia[i].MimeType)
				assert.Equal(t, wantMedia[i].ExtractedText, gotMedia[i].ExtractedText)
				assert.Equal(t, wantMedia[i].CreatedAt, gotMedia[i].CreatedAt)
			}

			wantContacts, _ := src.ListContacts("")
			gotContacts, err := dst.ListContacts("")
			require.NoError(t, err)
			require.Len(t, gotContacts, 1)
			wantContacts[0].ID, gotContacts[0].ID = 0, 0
			assert.Equal(t, wantContacts[0], gotContacts[0])

			wantLocs, _ := src.ListLocations("")
			gotLocs, err := dst.ListLocations("")
			require.NoError(t, err)
			require.Len(t, gotLocs, 1)
			wantLocs[0].ID, gotLocs[0].ID = 0, 0
			assert.Equal(t, wantLocs[0], gotLocs[0])

			doomed, err := dst.GetStoryByUUID("doomed")
			require.NoError(t, err)
			assert.Nil(t, doomed, "import is destructive")
		})
	}
}

func TestImportReplacesEverything(t *testing.T) {
	st := store.NewMemStore()
	for _, u := range []string{"old-1", "old-2", "old-3"} {
		_, err := st.AddStory(testStory(u))
		require.NoError(t, err)
	}
	_, err := st.AddContact(&store.Contact{StoryUUID: "old-1", Name: "Old", CreatedAt: testNow})
	require.NoError(t, err)

	doc := &Document{
		Version: DocumentVersion,
		Stories: []*store.Story{testStory("new-1"), testStory("new-2")},
	}
	counts, err := newService(st).Import(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, Counts{Stories: 2}, counts)

	stories, err := st.ListStories(store.StoryFilter{})
	require.NoError(t, err)
	require.Len(t, stories, 2)
	assert.Equal(t, "new-1", stories[0].UUID)
	assert.Equal(t, "new-2", stories[1].UUID)

	n, err := st.CountContacts()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParseRejectsMissingRequiredFields(t *testing.T) {
	cases := map[string]string{
		"no version":   `{"stories": []}`,
		"zero version": `{"version": 0, "stories": []}`,
		"no stories":   `{"version": 1, "media": []}`,
		"null stories": `{"version": 1, "stories": null}`,
		"not json":     `PK\x03\x04`,
		"bad status":   `{"version": 1, "stories": [{"uuid": "a", "status": "archived", "templateSnapshot": {"questions": []}, "answers": {}}]}`,
		"stray answer": `{"version": 1, "stories": [{"uuid": "a", "status": "draft", "templateSnapshot": {"questions": []}, "answers": {"q9": {"questionId": "q9", "value": "x"}}}]}`,
		"nameless contact": `{"version": 1, "stories": [], "contacts": [{"storyUuid": "a", "name": ""}]}`,
		"nameless location": `{"version": 1, "stories": [], "locations": [{"storyUuid": "a"}]}`,
		"bad media type": `{"version": 1, "stories": [], "media": [{"storyUuid": "a", "type": "video", "blobBase64": "", "mimeType": "video/mp4"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.ErrorIs(t, err, ErrInvalidBackupFormat)
		})
	}
}

func TestParseAcceptsMissingOptionalCollections(t *testing.T) {
	doc, err := Parse([]byte(`{"version": 1, "exportedAt": "2023-10-27T09:30:00.123Z", "stories": []}`))
	require.NoError(t, err)
	assert.Equal(t, Counts{}, doc.Counts())
	assert.Equal(t, testNow, doc.ExportedAt)
}

func TestParseCollectsEveryProblem(t *testing.T) {
	body := `{"version": 1, "stories": [],
		"media": [{"storyUuid": "a", "type": "photo", "blobBase64": "not base64!", "mimeType": "image/jpeg"}],
		"contacts": [{"storyUuid": "a", "name": ""}]}`
	_, err := Parse([]byte(body))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidBackupFormat)
	assert.ErrorIs(t, err, blobcodec.ErrMalformedEncoding)
	assert.ErrorIs(t, err, store.ErrInvalidRecord)

	var invalid *InvalidFormatError
	require.True(t, errors.As(err, &invalid))
	assert.Contains(t, invalid.Error(), "media[0]")
	assert.Contains(t, invalid.Error(), "contacts[0]")
}

func TestInvalidImportLeavesStoreUntouched(t *testing.T) {
	st := store.NewMemStore()
	seed(t, st)

	_, err := newService(st).ImportBytes(context.Background(), []byte(`{"stories": []}`))
	assert.ErrorIs(t, err, ErrInvalidBackupFormat)

	n, err := st.CountStories()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = st.CountMedia()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestImportIntoOlderSchemaLeavesStoreUntouched(t *testing.T) {
	src := store.NewMemStore()
	seed(t, src)
	doc, err := newService(src).Export(context.Background())
	require.NoError(t, err)

	for _, version := range []int{1, 3} {
		dst, err := store.Open(store.Options{Path: ":memory:", SchemaVersion: version})
		require.NoError(t, err)
		_, err = dst.AddStory(testStory("kept"))
		require.NoError(t, err)

		counts, err := newService(dst).Import(context.Background(), doc)
		assert.ErrorIs(t, err, store.ErrCollectionUnavailable, "v%d", version)
		assert.NotErrorIs(t, err, ErrPartialRestore, "v%d", version)
		assert.Equal(t, Counts{}, counts)

		n, err := dst.CountStories()
		require.NoError(t, err)
		assert.Equal(t, 1, n, "v%d", version)
		kept, err := dst.GetStoryByUUID("kept")
		require.NoError(t, err)
		assert.Equal(t, "Corruption: Case #12!!", kept.Headline)
		require.NoError(t, dst.Close())
	}
}

func TestPartialRestoreIsReported(t *testing.T) {
	src := store.NewMemStore()
	seed(t, src)
	doc, err := newService(src).Export(context.Background())
	require.NoError(t, err)

	// Room for the first blob only.
	dst := store.NewMemStoreWithQuota(int64(len(jpeg)))
	counts, err := newService(dst).Import(context.Background(), doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialRestore)
	assert.ErrorIs(t, err, store.ErrStorageQuotaExceeded)

	var partial *PartialRestoreError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, Counts{Stories: 2, Media: 1}, partial.Restored)
	assert.Equal(t, partial.Restored, counts)
}

func TestSaveAndLoad(t *testing.T) {
	st := store.NewMemStore()
	seed(t, st)
	doc, err := newService(st).Export(context.Background())
	require.NoError(t, err)

	v, err := files.NewMemVault()
	require.NoError(t, err)
	name := "backups/" + FileName(doc)
	assert.Equal(t, "backups/pocket-reporter-backup-2023-10-27.json", name)
	require.NoError(t, Save(v, name, doc))

	loaded, err := Load(v, name)
	require.NoError(t, err)
	assert.Equal(t, doc.Counts(), loaded.Counts())
	assert.Equal(t, doc.Media[0].BlobBase64, loaded.Media[0].BlobBase64)

	_, err = Load(v, "backups/missing.json")
	assert.Error(t, err)
}
