// Package files is the on-device file area for backup documents, story
// bundles and the template catalog. It runs over any hackpadfs file system:
// an OS directory on desktop, IndexedDB in the browser, memory in tests.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"

	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
	osfs "github.com/hack-pad/hackpadfs/os"
)

// Vault is a rooted view over a hackpadfs file system.
type Vault struct {
	FS   hackpadfs.FS
	Root string
	mu   sync.Mutex
}

// NewVault wraps fsys, keeping every file under root ("" for the whole FS).
func NewVault(fsys hackpadfs.FS, root string) *Vault {
	return &Vault{FS: fsys, Root: root}
}

// NewMemVault returns a vault backed by an in-memory file system.
func NewMemVault() (*Vault, error) {
	memFS, err := mem.NewFS()
	if err != nil {
		return nil, err
	}
	return NewVault(memFS, ""), nil
}

// NewOSVault returns a vault rooted at the OS directory dir, creating it if needed.
func NewOSVault(dir string) (*Vault, error) {
	osFS := osfs.NewFS()
	root, err := osFS.FromOSPath(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve vault dir %q: %w", dir, err)
	}
	if err := hackpadfs.MkdirAll(osFS, root, 0o700); err != nil {
		return nil, fmt.Errorf("create vault dir %q: %w", dir, err)
	}
	return NewVault(osFS, root), nil
}

func (v *Vault) resolve(name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", &fs.PathError{Op: "resolve", Path: name, Err: fs.ErrInvalid}
	}
	if v.Root == "" {
		return name, nil
	}
	return path.Join(v.Root, name), nil
}

// Write stores data at name, creating parent directories.
func (v *Vault) Write(name string, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, err := v.resolve(name)
	if err != nil {
		return err
	}
	if dir := path.Dir(p); dir != "." {
		if err := hackpadfs.MkdirAll(v.FS, dir, 0o700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := hackpadfs.WriteFullFile(v.FS, p, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Read returns the contents of name. Missing files match fs.ErrNotExist.
func (v *Vault) Read(name string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, err := v.resolve(name)
	if err != nil {
		return nil, err
	}
	return hackpadfs.ReadFile(v.FS, p)
}

// Exists reports whether name is present.
func (v *Vault) Exists(name string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, err := v.resolve(name)
	if err != nil {
		return false, err
	}
	_, err = hackpadfs.Stat(v.FS, p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// List returns the sorted names of the regular files directly inside dir.
// A missing directory lists as empty.
func (v *Vault) List(dir string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, err := v.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := hackpadfs.ReadDir(v.FS, p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes a single file.
func (v *Vault) Remove(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, err := v.resolve(name)
	if err != nil {
		return err
	}
	return hackpadfs.Remove(v.FS, p)
}

// RemoveAll deletes everything inside the vault, keeping the root itself.
func (v *Vault) RemoveAll() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	root := v.Root
	if root == "" {
		root = "."
	}
	entries, err := hackpadfs.ReadDir(v.FS, root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := hackpadfs.RemoveAll(v.FS, path.Join(root, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	return nil
}
