package core

import (
	"fmt"
	"sort"
	"sync"
)

// FeedInfo contains display information about a feed layout.
type FeedInfo struct {
	Key     string   `json:"key"`     // Unique identifier: "daily_bars"
	Group   string   `json:"group"`   // Data source: "EOD", "TICK", "QUOTE"
	Label   string   `json:"label"`   // Display name: "Daily OHLCV bars"
	Columns []string `json:"columns"` // Column names in file order
}

// FeedDefinition contains everything needed to decode one feed layout.
type FeedDefinition struct {
	Info FeedInfo

	// HeaderLines is the number of leading lines to skip in each stream.
	HeaderLines int

	// Build returns the rule table for this feed. It is called once per
	// parser, so decoders may hold per-stream state.
	Build func() (*RuleTable, error)
}

// NewParser builds a fresh engine for one stream of this feed.
func (d FeedDefinition) NewParser() (*LineParser, error) {
	if d.Build == nil {
		return nil, fmt.Errorf("feed %s: no rule table builder", d.Info.Key)
	}
	table, err := d.Build()
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", d.Info.Key, err)
	}
	return NewLineParser(table), nil
}

var (
	registry   = make(map[string]FeedDefinition)
	registryMu sync.RWMutex
)

// Register adds a feed definition to the registry.
// Panics if a feed with the same key is already registered.
func Register(def FeedDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("feed already registered: %s", def.Info.Key))
	}

	registry[def.Info.Key] = def
}

// Get returns a feed definition by key.
func Get(key string) (FeedDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered feed definitions, sorted by group then key.
func All() []FeedDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]FeedDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Info.Group != result[j].Info.Group {
			return result[i].Info.Group < result[j].Info.Group
		}
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// ByGroup returns the feed definitions of one group, sorted by key.
func ByGroup(group string) []FeedDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var result []FeedDefinition
	for _, def := range registry {
		if def.Info.Group == group {
			result = append(result, def)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// Groups returns all unique group names, sorted alphabetically.
func Groups() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, def := range registry {
		seen[def.Info.Group] = true
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}

	sort.Strings(groups)
	return groups
}

// FeedCount returns the number of registered feeds.
func FeedCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered feeds.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]FeedDefinition)
}
