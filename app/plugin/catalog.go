package plugin

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/vibast-solutions/ms-go-integrations/app/entity"
	"gopkg.in/yaml.v3"
)

// CatalogEntry is a plugin that can be installed from the registry.
type CatalogEntry struct {
	ID           string                      `yaml:"id"`
	Name         string                      `yaml:"name"`
	Version      string                      `yaml:"version"`
	Description  string                      `yaml:"description"`
	Author       string                      `yaml:"author"`
	Category     string                      `yaml:"category"`
	Capabilities []string                    `yaml:"capabilities"`
	Executor     string                      `yaml:"executor"`
	Location     string                      `yaml:"location"`
	Functions    []entity.PluginFunction     `yaml:"functions"`
	ConfigSchema map[string]entity.FieldSpec `yaml:"configSchema"`
}

type catalogFile struct {
	Plugins []CatalogEntry `yaml:"plugins"`
}

type Catalog struct {
	entries []CatalogEntry
	byID    map[string]int
}

// LoadCatalog reads a YAML catalog. A missing file yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewCatalog(nil)
		}
		return nil, fmt.Errorf("read plugin catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse plugin catalog: %w", err)
	}
	return NewCatalog(file.Plugins)
}

func NewCatalog(entries []CatalogEntry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]CatalogEntry, 0, len(entries)),
		byID:    make(map[string]int, len(entries)),
	}
	for _, entry := range entries {
		entry.ID = strings.TrimSpace(entry.ID)
		if entry.ID == "" {
			return nil, errors.New("plugin catalog entry without id")
		}
		if _, dup := c.byID[entry.ID]; dup {
			return nil, fmt.Errorf("duplicate plugin catalog entry: %s", entry.ID)
		}
		if entry.Executor == "" {
			entry.Executor = entity.ExecutorHTTP
		}
		if entry.Executor != entity.ExecutorHTTP && entry.Executor != entity.ExecutorBuiltin {
			return nil, fmt.Errorf("plugin %s: unknown executor %q", entry.ID, entry.Executor)
		}
		for _, fn := range entry.Functions {
			if strings.TrimSpace(fn.Name) == "" {
				return nil, fmt.Errorf("plugin %s: function without name", entry.ID)
			}
		}
		c.byID[entry.ID] = len(c.entries)
		c.entries = append(c.entries, entry)
	}
	return c, nil
}

func (c *Catalog) Get(id string) (CatalogEntry, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return CatalogEntry{}, false
	}
	return c.entries[idx], true
}

func (c *Catalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Catalog) Categories() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, entry := range c.entries {
		if entry.Category == "" {
			continue
		}
		if _, ok := seen[entry.Category]; ok {
			continue
		}
		seen[entry.Category] = struct{}{}
		out = append(out, entry.Category)
	}
	sort.Strings(out)
	return out
}

// NewPlugin builds an uninstalled plugin record from the entry.
func (e CatalogEntry) NewPlugin() *entity.Plugin {
	return &entity.Plugin{
		ID:           e.ID,
		Name:         e.Name,
		Version:      e.Version,
		Description:  e.Description,
		Author:       e.Author,
		Category:     e.Category,
		Capabilities: append([]string(nil), e.Capabilities...),
		Functions:    append([]entity.PluginFunction(nil), e.Functions...),
		ConfigSchema: e.ConfigSchema,
		Executor:     e.Executor,
		Source:       entity.PluginSourceRegistry,
		Location:     e.Location,
		State:        entity.PluginStateUninstalled,
		Health:       entity.PluginHealthHealthy,
	}
}
