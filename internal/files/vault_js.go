//go:build js && wasm

package files

import (
	"context"

	"github.com/hack-pad/hackpadfs/indexeddb"
)

// NewIndexedDBVault returns a vault persisted in the browser's IndexedDB
// database called name.
func NewIndexedDBVault(ctx context.Context, name string) (*Vault, error) {
	fs, err := indexeddb.NewFS(ctx, name, indexeddb.Options{})
	if err != nil {
		return nil, err
	}
	return NewVault(fs, ""), nil
}
