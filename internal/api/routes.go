// Package api serves the reporter over a loopback HTTP interface.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/adieyal/pocketreporter2/internal/backup"
	"github.com/adieyal/pocketreporter2/internal/bundle"
	"github.com/adieyal/pocketreporter2/internal/reporter"
)

// App bundles the services the handlers need.
type App struct {
	Reporter *reporter.Service
	Backups  *backup.Service
	Bundles  *bundle.Exporter
	// OCR reads text from uploaded documents. Nil stores them without text
	// unless the client sends its own.
	OCR reporter.TextExtractor
}

func Wire(app App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Get("/health", Health(app))
	root.Mount("/api", apiRouter(app))
	return root
}

func apiRouter(app App) http.Handler {
	api := chi.NewRouter()

	api.Get("/stories", ListStories(app))
	api.Post("/stories", CreateStory(app))
	api.Get("/stories/{uuid}", GetStory(app))
	api.Get("/stories/{uuid}/bundle", ExportStory(app))

	api.Get("/stories/{uuid}/media", ListMedia(app))
	api.Post("/stories/{uuid}/media", AddMedia(app))
	api.Post("/stories/{uuid}/documents", AddDocument(app))
	api.Get("/stories/{uuid}/contacts", ListContacts(app))
	api.Post("/stories/{uuid}/contacts", AddContact(app))
	api.Get("/stories/{uuid}/locations", ListLocations(app))
	api.Post("/stories/{uuid}/locations", AddLocation(app))

	api.Get("/media/{id:[0-9]+}", MediaBlob(app))
	api.Patch("/media/{id:[0-9]+}", CaptionMedia(app))
	api.Delete("/media/{id:[0-9]+}", DeleteMedia(app))
	api.Patch("/contacts/{id:[0-9]+}", UpdateContact(app))
	api.Delete("/contacts/{id:[0-9]+}", DeleteContact(app))
	api.Patch("/locations/{id:[0-9]+}", UpdateLocation(app))
	api.Delete("/locations/{id:[0-9]+}", DeleteLocation(app))

	api.Get("/backup", ExportBackup(app))
	api.Post("/backup", ImportBackup(app))

	api.Post("/clear", ClearStories(app))
	api.Post("/wipe", Wipe(app))
	api.Post("/sweep", SweepOrphans(app))

	return api
}
