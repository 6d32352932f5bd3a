//go:build js && wasm

// Command wasm exposes the reporter to the browser as the global PocketReporter.
// Records live in a MemStore; after every write the whole store is saved as a
// backup document in IndexedDB and restored from there on initialize.
package main

import (
	"context"
	"errors"
	"sync"
	"syscall/js"

	json "github.com/goccy/go-json"

	"github.com/adieyal/pocketreporter2/internal/autosave"
	"github.com/adieyal/pocketreporter2/internal/backup"
	"github.com/adieyal/pocketreporter2/internal/bundle"
	"github.com/adieyal/pocketreporter2/internal/catalog"
	"github.com/adieyal/pocketreporter2/internal/files"
	"github.com/adieyal/pocketreporter2/internal/log"
	"github.com/adieyal/pocketreporter2/internal/reporter"
	"github.com/adieyal/pocketreporter2/internal/store"
	"github.com/adieyal/pocketreporter2/pkg/blobcodec"
)

const (
	Version      = "0.1.0"
	databaseName = "PocketReporterDB"
	snapshotName = "backup.json"
)

var (
	st      = store.NewMemStore()
	vault   *files.Vault
	svc     *reporter.Service
	backups = backup.NewService(st)
	bundles = bundle.NewExporter(st, nil)
	editor  *autosave.Controller

	persistMu sync.Mutex
)

func main() {
	svc = reporter.New(st, reporter.WithCatalog(catalog.Default()))
	editor = autosave.New(st, autosave.Options{
		OnSaved: func(*store.Story) { go persist() },
		OnError: func(uuid string, err error) { println("[PocketReporter] autosave failed for", uuid+":", err.Error()) },
	})
	println("[PocketReporter] WASM Ready v" + Version)

	js.Global().Set("PocketReporter", js.ValueOf(map[string]interface{}{
		"version":        js.FuncOf(getVersion),
		"initialize":     js.FuncOf(initialize),
		"templates":      js.FuncOf(templates),
		"listStories":    js.FuncOf(listStories),
		"createStory":    js.FuncOf(createStory),
		"openStory":      js.FuncOf(openStory),
		"updateHeadline": js.FuncOf(updateHeadline),
		"updateAnswer":   js.FuncOf(updateAnswer),
		"setStatus":      js.FuncOf(setStatus),
		"flush":          js.FuncOf(flush),
		"exportBackup":   js.FuncOf(exportBackup),
		"importBackup":   js.FuncOf(importBackup),
		"exportStory":    js.FuncOf(exportStory),
		"clearStories":   js.FuncOf(clearStories),
		"wipe":           js.FuncOf(wipe),
		"sweep":          js.FuncOf(sweep),
		"addMedia":       js.FuncOf(addMedia),
		"addDocument":    js.FuncOf(addDocument),
		"listMedia":      js.FuncOf(listMedia),
		"mediaBlob":      js.FuncOf(mediaBlob),
		"captionMedia":   js.FuncOf(captionMedia),
		"deleteMedia":    js.FuncOf(deleteMedia),
		"addContact":     js.FuncOf(addContact),
		"updateContact":  js.FuncOf(updateContact),
		"deleteContact":  js.FuncOf(deleteContact),
		"listContacts":   js.FuncOf(listContacts),
		"addLocation":    js.FuncOf(addLocation),
		"updateLocation": js.FuncOf(updateLocation),
		"deleteLocation": js.FuncOf(deleteLocation),
		"listLocations":  js.FuncOf(listLocations),
	}))

	select {}
}

func getVersion(this js.Value, args []js.Value) interface{} {
	return Version
}

// initialize opens the IndexedDB vault and restores the last snapshot.
func initialize(this js.Value, args []js.Value) interface{} {
	return promise(func() (any, error) {
		v, err := files.NewIndexedDBVault(context.Background(), databaseName)
		if err != nil {
			return nil, err
		}
		vault = v
		svc = reporter.New(st, reporter.WithCatalog(catalog.Default()), reporter.WithVault(v))

		ok, err := v.Exists(snapshotName)
		if err != nil || !ok {
			return backup.Counts{}, err
		}
		doc, err := backup.Load(v, snapshotName)
		if err != nil {
			return nil, err
		}
		return backups.Import(context.Background(), doc)
	})
}

// persist saves the whole store into the vault.
func persist() {
	persistMu.Lock()
	defer persistMu.Unlock()

	if vault == nil {
		return
	}
	doc, err := backups.Export(context.Background())
	if err == nil {
		err = backup.Save(vault, snapshotName, doc)
	}
	if err != nil {
		log.Errorf("wasm: persist snapshot: %v", err)
	}
}

func templates(this js.Value, args []js.Value) interface{} {
	return jsonResult(svc.Catalog(), nil)
}

// listStories: [query string]
func listStories(this js.Value, args []js.Value) interface{} {
	query := ""
	if len(args) > 0 {
		query = args[0].String()
	}
	return jsonResult(svc.ListStories(query))
}

// createStory: [templateId string]
func createStory(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("createStory requires 1 arg: templateId")
	}
	story, err := svc.CreateStoryFromTemplate(args[0].String())
	if err == nil {
		go persist()
	}
	return jsonResult(story, err)
}

// openStory: [uuid string]
func openStory(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("openStory requires 1 arg: uuid")
	}
	return jsonResult(editor.Open(args[0].String()))
}

// updateHeadline: [uuid string, headline string]
func updateHeadline(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("updateHeadline requires 2 args: uuid, headline")
	}
	return statusResult(editor.UpdateHeadline(args[0].String(), args[1].String()))
}

// updateAnswer: [uuid string, questionId string, valueJSON string]
func updateAnswer(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("updateAnswer requires 3 args: uuid, questionId, valueJSON")
	}
	var value store.AnswerValue
	if err := json.Unmarshal([]byte(args[2].String()), &value); err != nil {
		return errorResult("value json: " + err.Error())
	}
	return statusResult(editor.UpdateAnswer(args[0].String(), args[1].String(), value))
}

// setStatus: [uuid string, status string]
func setStatus(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("setStatus requires 2 args: uuid, status")
	}
	return statusResult(editor.SetStatus(args[0].String(), store.Status(args[1].String())))
}

func flush(this js.Value, args []js.Value) interface{} {
	return promise(func() (any, error) {
		if err := editor.FlushAll(); err != nil {
			return nil, err
		}
		persist()
		return "flushed", nil
	})
}

func exportBackup(this js.Value, args []js.Value) interface{} {
	doc, err := backups.Export(context.Background())
	if err != nil {
		return errorResult(err.Error())
	}
	data, err := backup.Marshal(doc)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(map[string]string{"filename": backup.FileName(doc), "json": string(data)}, nil)
}

// importBackup: [documentJSON string]
func importBackup(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("importBackup requires 1 arg: documentJSON")
	}
	data := []byte(args[0].String())
	return promise(func() (any, error) {
		counts, err := backups.ImportBytes(context.Background(), data)
		var partial *backup.PartialRestoreError
		if err == nil || errors.As(err, &partial) {
			persist()
		}
		return counts, err
	})
}

// exportStory: [uuid string] -> {filename, base64}
func exportStory(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("exportStory requires 1 arg: uuid")
	}
	result, err := bundles.Export(context.Background(), args[0].String())
	if err != nil {
		return errorResult(err.Error())
	}
	enc := blobcodec.Encode(result.Data, result.ContentType)
	return jsonResult(map[string]string{
		"filename":    result.Filename,
		"contentType": enc.MediaType,
		"base64":      enc.Text,
	}, nil)
}

func clearStories(this js.Value, args []js.Value) interface{} {
	return promise(func() (any, error) {
		if err := svc.ClearAllStories(); err != nil {
			return nil, err
		}
		persist()
		return "cleared", nil
	})
}

// wipe destroys the store and the IndexedDB vault contents.
func wipe(this js.Value, args []js.Value) interface{} {
	return promise(func() (any, error) {
		if err := svc.Wipe(); err != nil {
			return nil, err
		}
		return "wiped", nil
	})
}

func sweep(this js.Value, args []js.Value) interface{} {
	return promise(func() (any, error) {
		removed, err := svc.SweepOrphans()
		if err != nil {
			return nil, err
		}
		persist()
		return removed, nil
	})
}

// addMedia: [uuid string, type string, base64 string, mimeType string]
func addMedia(this js.Value, args []js.Value) interface{} {
	if len(args) < 4 {
		return errorResult("addMedia requires 4 args: uuid, type, base64, mimeType")
	}
	uuid, mediaType, text, mimeType := args[0].String(), store.MediaType(args[1].String()), args[2].String(), args[3].String()
	return promise(func() (any, error) {
		blob, err := blobcodec.Decode(text, mimeType)
		if err != nil {
			return nil, err
		}
		item, err := svc.AddMedia(uuid, mediaType, blob, mimeType)
		if err != nil {
			return nil, err
		}
		persist()
		return item, nil
	})
}

// addDocument: [uuid string, base64 string, mimeType string, extractedText string]
// Text recognition runs in the page; its result arrives as extractedText.
func addDocument(this js.Value, args []js.Value) interface{} {
	if len(args) < 4 {
		return errorResult("addDocument requires 4 args: uuid, base64, mimeType, extractedText")
	}
	uuid, text, mimeType, extracted := args[0].String(), args[1].String(), args[2].String(), args[3].String()
	return promise(func() (any, error) {
		blob, err := blobcodec.Decode(text, mimeType)
		if err != nil {
			return nil, err
		}
		ocr := reporter.TextExtractorFunc(func(context.Context, []byte, string) (string, error) {
			return extracted, nil
		})
		item, err := svc.AddDocument(context.Background(), uuid, blob, mimeType, ocr)
		if err != nil {
			return nil, err
		}
		persist()
		return item, nil
	})
}

// listMedia: [uuid string]
func listMedia(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("listMedia requires 1 arg: uuid")
	}
	return jsonResult(svc.Media(args[0].String()))
}

// mediaBlob: [id number] -> {contentType, base64}
func mediaBlob(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("mediaBlob requires 1 arg: id")
	}
	item, err := st.GetMedia(int64(args[0].Int()))
	if err != nil {
		return errorResult(err.Error())
	}
	if item == nil {
		return errorResult(store.ErrNotFound.Error())
	}
	enc := blobcodec.Encode(item.Blob, item.MimeType)
	return jsonResult(map[string]string{"contentType": enc.MediaType, "base64": enc.Text}, nil)
}

// captionMedia: [id number, caption string]
func captionMedia(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("captionMedia requires 2 args: id, caption")
	}
	return persisted(svc.CaptionMedia(int64(args[0].Int()), args[1].String()))
}

// deleteMedia: [id number]
func deleteMedia(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("deleteMedia requires 1 arg: id")
	}
	return persisted(svc.DeleteMedia(int64(args[0].Int())))
}

// addContact: [uuid string, contactJSON string]
func addContact(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("addContact requires 2 args: uuid, contactJSON")
	}
	var c store.Contact
	if err := json.Unmarshal([]byte(args[1].String()), &c); err != nil {
		return errorResult("contact json: " + err.Error())
	}
	created, err := svc.AddContact(args[0].String(), c)
	if err == nil {
		go persist()
	}
	return jsonResult(created, err)
}

type contactPatch struct {
	Name         *string `json:"name"`
	Role         *string `json:"role"`
	Organization *string `json:"organization"`
	Phone        *string `json:"phone"`
	Email        *string `json:"email"`
	Notes        *string `json:"notes"`
}

// updateContact: [id number, patchJSON string]
func updateContact(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("updateContact requires 2 args: id, patchJSON")
	}
	var patch contactPatch
	if err := json.Unmarshal([]byte(args[1].String()), &patch); err != nil {
		return errorResult("patch json: " + err.Error())
	}
	return persisted(svc.UpdateContact(int64(args[0].Int()), store.ContactPatch(patch)))
}

// deleteContact: [id number]
func deleteContact(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("deleteContact requires 1 arg: id")
	}
	return persisted(svc.DeleteContact(int64(args[0].Int())))
}

// listContacts: [uuid string]
func listContacts(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("listContacts requires 1 arg: uuid")
	}
	return jsonResult(svc.Contacts(args[0].String()))
}

// addLocation: [uuid string, locationJSON string]
func addLocation(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("addLocation requires 2 args: uuid, locationJSON")
	}
	var l store.Location
	if err := json.Unmarshal([]byte(args[1].String()), &l); err != nil {
		return errorResult("location json: " + err.Error())
	}
	created, err := svc.AddLocation(args[0].String(), l)
	if err == nil {
		go persist()
	}
	return jsonResult(created, err)
}

type locationPatch struct {
	Name    *string  `json:"name"`
	Address *string  `json:"address"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Notes   *string  `json:"notes"`
}

// updateLocation: [id number, patchJSON string]
func updateLocation(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("updateLocation requires 2 args: id, patchJSON")
	}
	var patch locationPatch
	if err := json.Unmarshal([]byte(args[1].String()), &patch); err != nil {
		return errorResult("patch json: " + err.Error())
	}
	return persisted(svc.UpdateLocation(int64(args[0].Int()), store.LocationPatch(patch)))
}

// deleteLocation: [id number]
func deleteLocation(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("deleteLocation requires 1 arg: id")
	}
	return persisted(svc.DeleteLocation(int64(args[0].Int())))
}

// listLocations: [uuid string]
func listLocations(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("listLocations requires 1 arg: uuid")
	}
	return jsonResult(svc.Locations(args[0].String()))
}

// persisted snapshots the store after a successful write.
func persisted(err error) interface{} {
	if err == nil {
		go persist()
	}
	return statusResult(err)
}

// promise runs fn off the event loop and settles a JS Promise with its JSON result.
func promise(fn func() (any, error)) js.Value {
	handler := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolve, reject := args[0], args[1]
		go func() {
			v, err := fn()
			if err != nil {
				reject.Invoke(errorResult(err.Error()))
				return
			}
			resolve.Invoke(jsonResult(v, nil))
		}()
		return nil
	})
	defer handler.Release()
	return js.Global().Get("Promise").New(handler)
}

func jsonResult(v any, err error) interface{} {
	if err != nil {
		return errorResult(err.Error())
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult("marshal: " + err.Error())
	}
	return string(data)
}

func statusResult(err error) interface{} {
	if err != nil {
		return errorResult(err.Error())
	}
	return successResult("ok")
}

func errorResult(msg string) interface{} {
	result := map[string]interface{}{
		"error": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}

func successResult(msg string) interface{} {
	result := map[string]interface{}{
		"success": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}
