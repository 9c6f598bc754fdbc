package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/terra-clan/memgame/internal/models"
)

// ErrUnknownLevel is returned when a level name is not part of the catalog
var ErrUnknownLevel = errors.New("unknown level")

// Catalog is the fixed, ordered list of difficulty levels.
// The order defines progression. A Catalog never changes after New returns,
// so it is shared between requests without locking.
type Catalog struct {
	levels []models.Level
	byName map[string]int
	bySlug map[string]int
}

// Default returns the built-in progression: Básico, Medio, Avanzado
func Default() *Catalog {
	c, err := New([]models.Level{
		{Name: "Básico", CardCount: 8, TimeLimit: 60, Attempts: 10},
		{Name: "Medio", CardCount: 12, TimeLimit: 80, Attempts: 8},
		{Name: "Avanzado", CardCount: 16, TimeLimit: 90, Attempts: 6},
	})
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// New validates the levels and builds a catalog in the given order
func New(levels []models.Level) (*Catalog, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("catalog must contain at least one level")
	}

	c := &Catalog{
		levels: make([]models.Level, 0, len(levels)),
		byName: make(map[string]int, len(levels)),
		bySlug: make(map[string]int, len(levels)),
	}

	for i, lvl := range levels {
		if lvl.Name == "" {
			return nil, fmt.Errorf("level %d: name is required", i)
		}
		if _, dup := c.byName[lvl.Name]; dup {
			return nil, fmt.Errorf("level %q: duplicate name", lvl.Name)
		}
		if lvl.CardCount < 2 || lvl.CardCount%2 != 0 {
			return nil, fmt.Errorf("level %q: card count must be a positive even number, got %d", lvl.Name, lvl.CardCount)
		}
		if lvl.TimeLimit <= 0 {
			return nil, fmt.Errorf("level %q: time limit must be positive", lvl.Name)
		}
		if lvl.Attempts <= 0 {
			return nil, fmt.Errorf("level %q: attempts must be positive", lvl.Name)
		}

		lvl.Slug = slug.Make(lvl.Name)
		if lvl.Slug == "" {
			return nil, fmt.Errorf("level %q: name has no usable slug", lvl.Name)
		}
		if other, dup := c.bySlug[lvl.Slug]; dup {
			return nil, fmt.Errorf("level %q: slug %q already used by %q", lvl.Name, lvl.Slug, c.levels[other].Name)
		}

		c.byName[lvl.Name] = len(c.levels)
		c.bySlug[lvl.Slug] = len(c.levels)
		c.levels = append(c.levels, lvl)
	}

	return c, nil
}

// LoadFile loads a catalog from a YAML file. The order of the file is the
// progression order.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}

	c, err := New(cf.Levels)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}

	slog.Info("level catalog loaded", "file", path, "levels", c.Len())
	return c, nil
}

// Resolve returns the parameters of the level with the exact given name
func (c *Catalog) Resolve(name string) (models.Level, error) {
	i, ok := c.byName[name]
	if !ok {
		return models.Level{}, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
	}
	return c.levels[i], nil
}

// Lookup resolves a level by name or by slug
func (c *Catalog) Lookup(nameOrSlug string) (models.Level, error) {
	if i, ok := c.byName[nameOrSlug]; ok {
		return c.levels[i], nil
	}
	if i, ok := c.bySlug[nameOrSlug]; ok {
		return c.levels[i], nil
	}
	return models.Level{}, fmt.Errorf("%w: %q", ErrUnknownLevel, nameOrSlug)
}

// Next returns the level following current. The last level and unknown
// names both yield false.
func (c *Catalog) Next(current string) (models.Level, bool) {
	i, ok := c.byName[current]
	if !ok || i+1 >= len(c.levels) {
		return models.Level{}, false
	}
	return c.levels[i+1], true
}

// First returns the entry level
func (c *Catalog) First() models.Level {
	return c.levels[0]
}

// Levels returns a copy of all levels in catalog order
func (c *Catalog) Levels() []models.Level {
	result := make([]models.Level, len(c.levels))
	copy(result, c.levels)
	return result
}

// Len returns the number of levels
func (c *Catalog) Len() int {
	return len(c.levels)
}

// catalogFile represents the YAML structure of a catalog file
type catalogFile struct {
	Levels []models.Level `yaml:"levels"`
}
