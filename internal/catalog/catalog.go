// Package catalog holds the mutable classification catalog used to validate
// ticket categories and priorities at write time.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Kind selects a classification list.
type Kind string

const (
	KindCategory Kind = "category"
	KindPriority Kind = "priority"
)

// Entry is one classification value.
type Entry struct {
	Key    string `yaml:"key"`
	Label  string `yaml:"label"`
	Active bool   `yaml:"active"`
}

type file struct {
	Categories []Entry `yaml:"categories"`
	Priorities []Entry `yaml:"priorities"`
}

// Checker answers whether a classification key is currently active.
type Checker interface {
	IsActive(ctx context.Context, kind Kind, key string) (bool, error)
}

// Catalog is an in-process catalog that admins can mutate at runtime.
type Catalog struct {
	mu      sync.RWMutex
	entries map[Kind]map[string]Entry
}

// New builds a catalog from category and priority entries.
func New(categories, priorities []Entry) *Catalog {
	c := &Catalog{entries: map[Kind]map[string]Entry{
		KindCategory: {},
		KindPriority: {},
	}}
	for _, e := range categories {
		c.entries[KindCategory][e.Key] = e
	}
	for _, e := range priorities {
		c.entries[KindPriority][e.Key] = e
	}
	return c
}

// Default returns the built-in catalog used when no file is configured.
func Default() *Catalog {
	return New(
		[]Entry{
			{Key: "hardware", Label: "Hardware", Active: true},
			{Key: "software", Label: "Software", Active: true},
			{Key: "network", Label: "Network", Active: true},
			{Key: "access", Label: "Access", Active: true},
			{Key: "other", Label: "Other", Active: true},
		},
		[]Entry{
			{Key: "low", Label: "Low", Active: true},
			{Key: "medium", Label: "Medium", Active: true},
			{Key: "high", Label: "High", Active: true},
			{Key: "critical", Label: "Critical", Active: true},
		},
	)
}

// Load reads a YAML catalog file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(f.Categories, f.Priorities), nil
}

// IsActive implements Checker.
func (c *Catalog) IsActive(_ context.Context, kind Kind, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[kind][key]
	return ok && e.Active, nil
}

// SetActive toggles an entry, creating it when missing.
func (c *Catalog) SetActive(kind Kind, key string, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[kind] == nil {
		c.entries[kind] = map[string]Entry{}
	}
	e := c.entries[kind][key]
	e.Key = key
	if e.Label == "" {
		e.Label = key
	}
	e.Active = active
	c.entries[kind][key] = e
}

// List returns the entries of a kind sorted by key.
func (c *Catalog) List(kind Kind) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.entries[kind]))
	for _, e := range c.entries[kind] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
