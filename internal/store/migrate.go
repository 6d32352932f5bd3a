package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/adieyal/pocketreporter2/internal/log"
)

//go:embed migrations
var dbMigrations embed.FS

// LatestSchemaVersion is the highest migration shipped in migrations/.
const LatestSchemaVersion = 4

// Version at which each collection first exists.
const (
	storiesSince   = 1
	mediaSince     = 2
	contactsSince  = 3
	locationsSince = 4
)

type migration struct {
	version    uint
	identifier string
	body       string
}

// loadMigrations reads every up migration from the embedded source, in version order.
func loadMigrations() ([]migration, error) {
	src, err := iofs.New(dbMigrations, "migrations")
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var out []migration
	v, err := src.First()
	for err == nil {
		m, rerr := readUp(src, v)
		if rerr != nil {
			return nil, rerr
		}
		out = append(out, m)
		v, err = src.Next(v)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return out, nil
}

func readUp(src source.Driver, v uint) (migration, error) {
	r, identifier, err := src.ReadUp(v)
	if err != nil {
		return migration{}, fmt.Errorf("read migration %d: %w", v, err)
	}
	defer r.Close()
	body, err := io.ReadAll(r)
	if err != nil {
		return migration{}, fmt.Errorf("read migration %d: %w", v, err)
	}
	return migration{version: v, identifier: identifier, body: string(body)}, nil
}

func userVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow("PRAGMA user_version").Scan(&v)
	return v, err
}

// migrateDB applies every migration above the database's current version up to
// and including target. Each step runs in its own transaction together with the
// user_version bump, so a failed step leaves the previous version intact.
func migrateDB(db *sql.DB, target int) (int, error) {
	current, err := userVersion(db)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if current > target {
		return current, fmt.Errorf("%w: database at v%d, requested v%d", ErrSchemaTooNew, current, target)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return current, err
	}
	for _, m := range migrations {
		if int(m.version) <= current || int(m.version) > target {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return current, err
		}
		if _, err := tx.Exec(m.body); err != nil {
			tx.Rollback()
			return current, fmt.Errorf("apply migration %d (%s): %w", m.version, m.identifier, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return current, fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return current, err
		}
		current = int(m.version)
		log.Infof("store: applied migration v%d (%s)", m.version, m.identifier)
	}
	return current, nil
}
