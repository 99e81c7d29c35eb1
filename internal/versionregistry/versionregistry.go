// Package versionregistry implements pkg/conflict's VersionProvider with a
// configuration-seeded, in-memory version catalog. spec.md's Non-goals
// exclude live package-registry fetches, so this stands in for what a real
// deployment would back with an actual registry client (npm, crates.io,
// the Go module proxy) while still giving the Conflict Resolver genuine
// version pools to intersect constraints against, rather than a test
// fake. The seed/lookup shape follows pkg/config's Loader: parse once at
// construction, serve from memory afterward.
package versionregistry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Catalog is the on-disk/seed shape: dependency name to a list of known
// version strings.
type Catalog struct {
	Dependencies map[string][]string `yaml:"dependencies"`
}

// Registry answers AvailableVersions from a parsed Catalog, implementing
// pkg/conflict.VersionProvider.
type Registry struct {
	mu       sync.RWMutex
	versions map[string][]*semver.Version
}

// New builds an empty Registry. Use Seed or LoadYAML to populate it.
func New() *Registry {
	return &Registry{versions: make(map[string][]*semver.Version)}
}

// LoadYAML parses a Catalog document and seeds the registry from it.
// Malformed version strings are skipped rather than failing the whole
// load, since one bad entry shouldn't take down the resolver.
func LoadYAML(data []byte) (*Registry, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse version catalog: %w", err)
	}

	r := New()
	for name, raw := range catalog.Dependencies {
		r.Seed(name, raw)
	}
	return r, nil
}

// Seed registers rawVersions (e.g. "1.2.3", "2.0.0-beta.1") for name,
// replacing any versions previously seeded for it.
func (r *Registry) Seed(name string, rawVersions []string) {
	parsed := make([]*semver.Version, 0, len(rawVersions))
	for _, raw := range rawVersions {
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		parsed = append(parsed, v)
	}
	sort.Sort(semver.Collection(parsed))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[name] = parsed
}

// AvailableVersions implements pkg/conflict.VersionProvider.
func (r *Registry) AvailableVersions(dependencyName string) []*semver.Version {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.versions[dependencyName]
	out := make([]*semver.Version, len(versions))
	copy(out, versions)
	return out
}

// Known reports whether any versions have been seeded for name.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.versions[name]
	return ok
}
