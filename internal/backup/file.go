package backup

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/adieyal/pocketreporter2/internal/files"
	"github.com/adieyal/pocketreporter2/internal/log"
)

// FileName returns the conventional name for a backup taken at doc.ExportedAt.
func FileName(doc *Document) string {
	return fmt.Sprintf("pocket-reporter-backup-%s.json", doc.ExportedAt.UTC().Format("2006-01-02"))
}

// Save writes doc as JSON to name inside the vault.
func Save(v *files.Vault, name string, doc *Document) error {
	data, err := Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := v.Write(name, data); err != nil {
		return err
	}
	log.Infof("backup: wrote %s (%s)", name, humanize.Bytes(uint64(len(data))))
	return nil
}

// Load reads and parses the document stored at name.
func Load(v *files.Vault, name string) (*Document, error) {
	data, err := v.Read(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup %s: %w", name, err)
	}
	return Parse(data)
}
