// Command reporter is the desktop front end: a CLI over the story database
// and a loopback HTTP server for local tools.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/adieyal/pocketreporter2/internal/backup"
	"github.com/adieyal/pocketreporter2/internal/bundle"
	"github.com/adieyal/pocketreporter2/internal/catalog"
	"github.com/adieyal/pocketreporter2/internal/config"
	"github.com/adieyal/pocketreporter2/internal/files"
	"github.com/adieyal/pocketreporter2/internal/log"
	"github.com/adieyal/pocketreporter2/internal/reporter"
	"github.com/adieyal/pocketreporter2/internal/store"
)

// env is everything a command runs against.
type env struct {
	cfg      config.Config
	store    store.Storer
	vault    *files.Vault
	reporter *reporter.Service
	backups  *backup.Service
	bundles  *bundle.Exporter
}

// runner executes a command once flags are parsed.
type runner func(ctx context.Context, e *env) error

// command registers its own flags and returns the function that runs it.
type command struct {
	usage string
	setup func(fs *flag.FlagSet) runner
}

var commands = map[string]command{
	"list":          {"list stories, newest first", listCmd},
	"create-story":  {"create a draft story from a template", createStoryCmd},
	"edit":          {"edit a story's headline, status or answers", editCmd},
	"export-backup": {"write a backup document into the data dir", exportBackupCmd},
	"import-backup": {"replace everything with a backup document from the data dir", importBackupCmd},
	"export-story":  {"write a story bundle zip into the data dir", exportStoryCmd},
	"sweep":         {"delete attachments whose story is gone", sweepCmd},
	"clear":         {"delete all stories and media", clearCmd},
	"wipe":          {"destroy all data and files", wipeCmd},
	"serve":         {"serve the loopback API", serveCmd},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name, args := os.Args[1], os.Args[2:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	run := cmd.setup(fs)
	cfg, err := config.Parse(fs, args)
	if err != nil {
		log.Fatal("main.config: ", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	e, err := openEnv(cfg)
	if err != nil {
		log.Fatal("main.open: ", err)
	}
	defer e.store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, e); err != nil {
		e.store.Close()
		log.Fatal(name+": ", err)
	}
}

func openEnv(cfg config.Config) (*env, error) {
	st, err := store.Open(store.Options{Path: cfg.DBPath, MaxPageCount: cfg.MaxPageCount})
	if err != nil {
		return nil, err
	}
	vault, err := files.NewOSVault(cfg.DataDir)
	if err != nil {
		st.Close()
		return nil, err
	}
	cat, err := loadCatalog(vault, cfg.TemplatesPath)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &env{
		cfg:      cfg,
		store:    st,
		vault:    vault,
		reporter: reporter.New(st, reporter.WithVault(vault), reporter.WithCatalog(cat)),
		backups:  backup.NewService(st),
		bundles:  bundle.NewExporter(st, cfg.Location),
	}, nil
}

// loadCatalog reads the catalog from the data dir, falling back to the bundled one.
func loadCatalog(v *files.Vault, name string) (*catalog.Catalog, error) {
	ok, err := v.Exists(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Debugf("catalog: %s not in data dir, using bundled templates", name)
		return catalog.Default(), nil
	}
	return catalog.Load(v, name)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: reporter <command> [flags]")
	fmt.Fprintln(os.Stderr)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", name, commands[name].usage)
	}
	fmt.Fprintln(os.Stderr, "\nRun 'reporter <command> -h' for the flags of a command.")
}
