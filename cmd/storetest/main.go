// Command storetest is a smoke test that drives both store implementations
// through a story, an attachment and a backup round trip.
package main

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/adieyal/pocketreporter2/internal/backup"
	"github.com/adieyal/pocketreporter2/internal/catalog"
	"github.com/adieyal/pocketreporter2/internal/log"
	"github.com/adieyal/pocketreporter2/internal/reporter"
	"github.com/adieyal/pocketreporter2/internal/store"
)

func main() {
	fmt.Println("Testing MemStore...")
	exercise(store.NewMemStore())

	fmt.Println("\nTesting SQLiteStore...")
	s, err := store.NewSQLiteStore()
	if err != nil {
		log.Fatal(fmt.Sprintf("NewSQLiteStore failed: %v", err))
	}
	exercise(s)

	fmt.Println("\n✅ All tests passed!")
}

func fatalf(format string, args ...any) {
	log.Fatal(fmt.Sprintf(format, args...))
}

func exercise(s store.Storer) {
	defer s.Close()
	ctx := context.Background()
	svc := reporter.New(s, reporter.WithCatalog(catalog.Default()))

	story, err := svc.CreateStoryFromTemplate("court-case")
	if err != nil {
		fatalf("CreateStory failed: %v", err)
	}
	fmt.Println("  ✓ CreateStory works")

	headline := "Smoke test hearing"
	updated := time.Now()
	if err := s.UpdateStory(story.ID, store.StoryPatch{Headline: &headline, UpdatedAt: &updated}); err != nil {
		fatalf("UpdateStory failed: %v", err)
	}
	got, err := svc.Story(story.UUID)
	if err != nil {
		fatalf("GetStory failed: %v", err)
	}
	if got.Headline != headline {
		fatalf("UpdateStory expected %q, got %q", headline, got.Headline)
	}
	fmt.Println("  ✓ UpdateStory works")

	blob := []byte{0x00, 0xff, 0x10, 0x80}
	if _, err := svc.AddMedia(story.UUID, store.MediaPhoto, blob, "image/jpeg"); err != nil {
		fatalf("AddMedia failed: %v", err)
	}
	fmt.Println("  ✓ AddMedia works")

	backups := backup.NewService(s)
	doc, err := backups.Export(ctx)
	if err != nil {
		fatalf("Export failed: %v", err)
	}
	counts, err := backups.Import(ctx, doc)
	if err != nil {
		fatalf("Import failed: %v", err)
	}
	if counts.Stories != 1 || counts.Media != 1 {
		fatalf("Import expected 1 story and 1 media, got %+v", counts)
	}
	media, err := svc.Media(story.UUID)
	if err != nil {
		fatalf("ListMedia failed: %v", err)
	}
	if len(media) != 1 || !bytes.Equal(media[0].Blob, blob) {
		fatalf("backup round trip changed the blob")
	}
	fmt.Println("  ✓ Backup round trip works")

	n, err := s.CountStories()
	if err != nil {
		fatalf("CountStories failed: %v", err)
	}
	if n != 1 {
		fatalf("CountStories expected 1, got %d", n)
	}
	fmt.Println("  ✓ CountStories works")
}
