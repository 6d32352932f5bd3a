// Package catalog loads the story templates reporters pick from.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"

	"github.com/adieyal/pocketreporter2/internal/files"
	"github.com/adieyal/pocketreporter2/internal/store"
)

//go:embed templates.json
var defaultCatalog []byte

var (
	ErrInvalidCatalog  = errors.New("invalid template catalog")
	ErrUnknownTemplate = errors.New("unknown template")
)

// Catalog is the parsed templates document.
type Catalog struct {
	Categories []store.Category `json:"categories"`
	StoryTypes []store.Template `json:"storyTypes"`
}

// Default returns the catalog bundled with the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: bundled templates.json: %v", err))
	}
	return c
}

// Parse decodes and checks a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads a catalog file from a vault.
func Load(v *files.Vault, name string) (*Catalog, error) {
	data, err := v.Read(name)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return Parse(data)
}

func (c *Catalog) validate() error {
	var errs *multierror.Error
	categories := make(map[string]bool, len(c.Categories))
	for i, cat := range c.Categories {
		if cat.ID == "" {
			errs = multierror.Append(errs, fmt.Errorf("categories[%d]: missing id", i))
			continue
		}
		if categories[cat.ID] {
			errs = multierror.Append(errs, fmt.Errorf("categories[%d]: duplicate id %q", i, cat.ID))
		}
		categories[cat.ID] = true
	}

	templates := make(map[string]bool, len(c.StoryTypes))
	for i, t := range c.StoryTypes {
		if t.ID == "" {
			errs = multierror.Append(errs, fmt.Errorf("storyTypes[%d]: missing id", i))
			continue
		}
		if templates[t.ID] {
			errs = multierror.Append(errs, fmt.Errorf("storyTypes[%d]: duplicate id %q", i, t.ID))
		}
		templates[t.ID] = true
		if t.CategoryID != "" && !categories[t.CategoryID] {
			errs = multierror.Append(errs, fmt.Errorf("storyTypes[%d]: unknown category %q", i, t.CategoryID))
		}
		questions := make(map[string]bool, len(t.Questions))
		for j, q := range t.Questions {
			switch {
			case q.ID == "":
				errs = multierror.Append(errs, fmt.Errorf("storyTypes[%d].questions[%d]: missing id", i, j))
			case questions[q.ID]:
				errs = multierror.Append(errs, fmt.Errorf("storyTypes[%d].questions[%d]: duplicate id %q", i, j, q.ID))
			case !q.Type.Valid():
				errs = multierror.Append(errs, fmt.Errorf("storyTypes[%d].questions[%d]: unknown type %q", i, j, q.Type))
			}
			questions[q.ID] = true
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return nil
}

// Template returns a deep copy of the template with the given id, so callers
// may snapshot it into a story without sharing memory with the catalog.
func (c *Catalog) Template(id string) (store.Template, error) {
	for _, t := range c.StoryTypes {
		if t.ID == id {
			return t.Clone(), nil
		}
	}
	return store.Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, id)
}

func (c *Catalog) TemplatesInCategory(categoryID string) []store.Template {
	var out []store.Template
	for _, t := range c.StoryTypes {
		if t.CategoryID == categoryID {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (c *Catalog) Category(id string) (store.Category, bool) {
	for _, cat := range c.Categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return store.Category{}, false
}
