package tool

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Source resolves manifests by name and optional version. Implementations
// must be safe for concurrent use; resolution never mutates a manifest.
type Source interface {
	// GetManifest returns the manifest for name. An empty version selects
	// the latest registered version.
	GetManifest(ctx context.Context, name, version string) (Manifest, error)
}

// Store is a writable manifest registry backing a Source. The file and
// SQLite implementations back CLI and daemon modes respectively.
type Store interface {
	Source
	List(ctx context.Context) ([]Manifest, error)
	Put(ctx context.Context, m Manifest) error
	Delete(ctx context.Context, name, version string) error
}

func manifestNotFound(name, version string) error {
	msg := fmt.Sprintf("tool: manifest %q not found", name)
	if version != "" {
		msg = fmt.Sprintf("tool: manifest %q version %q not found", name, version)
	}
	return newToolError(ErrorCodeResolution, msg, false, nil)
}

type manifestKey struct {
	name    string
	version string
}

// MemorySource is an in-memory manifest store, used by tests and as a
// read-through snapshot for embedded callers.
type MemorySource struct {
	mu        sync.RWMutex
	manifests map[manifestKey]Manifest
	latest    map[string]string
}

// NewMemorySource creates an empty in-memory store.
func NewMemorySource(manifests ...Manifest) (*MemorySource, error) {
	s := &MemorySource{
		manifests: make(map[manifestKey]Manifest),
		latest:    make(map[string]string),
	}
	for _, m := range manifests {
		if err := s.Put(context.Background(), m); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// GetManifest implements Source.
func (s *MemorySource) GetManifest(ctx context.Context, name, version string) (Manifest, error) {
	if err := ctx.Err(); err != nil {
		return Manifest{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if version == "" {
		version = s.latest[name]
	}
	m, ok := s.manifests[manifestKey{name: name, version: version}]
	if !ok {
		return Manifest{}, manifestNotFound(name, version)
	}
	return m, nil
}

// List returns all manifests in deterministic name/version order.
func (s *MemorySource) List(ctx context.Context) ([]Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Manifest, 0, len(s.manifests))
	for _, m := range s.manifests {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Manifest) int {
		if a.Name != b.Name {
			if a.Name < b.Name {
				return -1
			}
			return 1
		}
		if a.Version < b.Version {
			return -1
		}
		if a.Version > b.Version {
			return 1
		}
		return 0
	})
	return out, nil
}

// Put validates and stores a manifest. The most recently stored version of a
// name becomes the latest.
func (s *MemorySource) Put(ctx context.Context, m Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.manifests[manifestKey{name: m.Name, version: m.Version}] = m
	s.latest[m.Name] = m.Version
	return nil
}

// Delete removes one manifest version, or every version when version is "".
func (s *MemorySource) Delete(ctx context.Context, name, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if version != "" {
		delete(s.manifests, manifestKey{name: name, version: version})
		if s.latest[name] == version {
			delete(s.latest, name)
		}
		return nil
	}
	for key := range s.manifests {
		if key.name == name {
			delete(s.manifests, key)
		}
	}
	delete(s.latest, name)
	return nil
}

var _ Store = (*MemorySource)(nil)
