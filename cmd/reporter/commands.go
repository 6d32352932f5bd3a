package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/adieyal/pocketreporter2/internal/api"
	"github.com/adieyal/pocketreporter2/internal/autosave"
	"github.com/adieyal/pocketreporter2/internal/backup"
	"github.com/adieyal/pocketreporter2/internal/log"
	"github.com/adieyal/pocketreporter2/internal/store"
)

var errNotConfirmed = errors.New("refusing to run without -yes")

func listCmd(fs *flag.FlagSet) runner {
	query := fs.String("q", "", "only stories whose headline or template contain every term")
	return func(ctx context.Context, e *env) error {
		stories, err := e.reporter.ListStories(*query)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "UUID\tSTATUS\tUPDATED\tTEMPLATE\tHEADLINE")
		for _, s := range stories {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.UUID, s.Status, humanize.Time(s.UpdatedAt), s.TemplateSnapshot.Name, s.Headline)
		}
		return tw.Flush()
	}
}

func createStoryCmd(fs *flag.FlagSet) runner {
	templateID := fs.String("template", "", "template id from the catalog")
	return func(ctx context.Context, e *env) error {
		if *templateID == "" {
			return errors.New("missing parameter -template")
		}
		story, err := e.reporter.CreateStoryFromTemplate(*templateID)
		if err != nil {
			return err
		}
		fmt.Println(story.UUID)
		return nil
	}
}

// answerFlags collects repeated -answer question=value pairs.
type answerFlags []string

func (a *answerFlags) String() string { return strings.Join(*a, ",") }

func (a *answerFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected question=value, got %q", v)
	}
	*a = append(*a, v)
	return nil
}

func editCmd(fs *flag.FlagSet) runner {
	uuid := fs.String("uuid", "", "story uuid")
	headline := fs.String("headline", "", "new headline")
	status := fs.String("status", "", "new status (draft or complete)")
	var answers answerFlags
	fs.Var(&answers, "answer", "question=value, repeatable")
	return func(ctx context.Context, e *env) error {
		if *uuid == "" {
			return errors.New("missing parameter -uuid")
		}
		editor := autosave.New(e.store, autosave.Options{Debounce: e.cfg.Debounce})
		story, err := editor.Open(*uuid)
		if err != nil {
			return err
		}
		if *headline != "" {
			if err := editor.UpdateHeadline(*uuid, *headline); err != nil {
				return err
			}
		}
		if *status != "" {
			if err := editor.SetStatus(*uuid, store.Status(*status)); err != nil {
				return err
			}
		}
		for _, pair := range answers {
			id, raw, _ := strings.Cut(pair, "=")
			value := store.TextValue(raw)
			if q, ok := story.TemplateSnapshot.Question(id); ok && q.Type == store.QuestionCheckbox {
				b, err := strconv.ParseBool(raw)
				if err != nil {
					return fmt.Errorf("answer %s: %w", id, err)
				}
				value = store.BoolValue(b)
			}
			if err := editor.UpdateAnswer(*uuid, id, value); err != nil {
				return err
			}
		}
		if err := editor.Close(); err != nil {
			return err
		}
		writes, coalesced := editor.Stats()
		log.Debugf("edit: %d write(s), %d edit(s) coalesced", writes, coalesced)
		return nil
	}
}

func exportBackupCmd(fs *flag.FlagSet) runner {
	out := fs.String("out", "", "file name inside the data dir (default pocket-reporter-backup-<date>.json)")
	return func(ctx context.Context, e *env) error {
		doc, err := e.backups.Export(ctx)
		if err != nil {
			return err
		}
		name := *out
		if name == "" {
			name = backup.FileName(doc)
		}
		if err := backup.Save(e.vault, name, doc); err != nil {
			return err
		}
		c := doc.Counts()
		fmt.Printf("%s: %d stories, %d media, %d contacts, %d locations\n", name, c.Stories, c.Media, c.Contacts, c.Locations)
		return nil
	}
}

func importBackupCmd(fs *flag.FlagSet) runner {
	in := fs.String("in", "", "backup file name inside the data dir")
	return func(ctx context.Context, e *env) error {
		if *in == "" {
			return errors.New("missing parameter -in")
		}
		doc, err := backup.Load(e.vault, *in)
		if err != nil {
			return err
		}
		c, err := e.backups.Import(ctx, doc)
		if err != nil {
			return err
		}
		fmt.Printf("restored %d stories, %d media, %d contacts, %d locations\n", c.Stories, c.Media, c.Contacts, c.Locations)
		return nil
	}
}

func exportStoryCmd(fs *flag.FlagSet) runner {
	uuid := fs.String("uuid", "", "story uuid")
	dir := fs.String("dir", "exports", "directory inside the data dir")
	return func(ctx context.Context, e *env) error {
		if *uuid == "" {
			return errors.New("missing parameter -uuid")
		}
		result, err := e.bundles.Export(ctx, *uuid)
		if err != nil {
			return err
		}
		name, err := result.Save(e.vault, *dir)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n", name, humanize.Bytes(uint64(len(result.Data))))
		return nil
	}
}

func sweepCmd(fs *flag.FlagSet) runner {
	return func(ctx context.Context, e *env) error {
		sweep, err := e.reporter.SweepOrphans()
		if err != nil {
			return err
		}
		fmt.Printf("removed %d media, %d contacts, %d locations\n", sweep.Media, sweep.Contacts, sweep.Locations)
		return nil
	}
}

func clearCmd(fs *flag.FlagSet) runner {
	yes := fs.Bool("yes", false, "confirm deleting every story and media item")
	return func(ctx context.Context, e *env) error {
		if !*yes {
			return errNotConfirmed
		}
		return e.reporter.ClearAllStories()
	}
}

func wipeCmd(fs *flag.FlagSet) runner {
	yes := fs.Bool("yes", false, "confirm destroying all data and files")
	return func(ctx context.Context, e *env) error {
		if !*yes {
			return errNotConfirmed
		}
		return e.reporter.Wipe()
	}
}

func serveCmd(fs *flag.FlagSet) runner {
	return func(ctx context.Context, e *env) error {
		srv := &http.Server{
			Addr: e.cfg.Addr,
			Handler: api.Wire(api.App{
				Reporter: e.reporter,
				Backups:  e.backups,
				Bundles:  e.bundles,
			}),
			IdleTimeout:  time.Minute,
			ReadTimeout:  time.Minute,
			WriteTimeout: 5 * time.Minute,
		}

		go func() {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdown)
		}()

		log.Info("Listening on http://" + e.cfg.Addr)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
