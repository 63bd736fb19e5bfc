package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

const (
	fileStoreVersionV1 = "1"
	defaultStoreDir    = ".toolrun"
	defaultStoreFile   = "manifests.json"
)

var errEmptyStorePath = errors.New("tool: file store path is empty")

type fileStoreDocument struct {
	Version   string     `json:"version"`
	Manifests []Manifest `json:"manifests"`
}

// FileStore persists manifests in a local JSON file. Intended for CLI mode.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore creates a file-backed manifest store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultStorePath returns the default manifest file path for CLI mode.
func DefaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("tool: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultStoreDir, defaultStoreFile), nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// GetManifest implements Source.
func (s *FileStore) GetManifest(ctx context.Context, name, version string) (Manifest, error) {
	if err := ctx.Err(); err != nil {
		return Manifest{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	manifests, err := s.load()
	if err != nil {
		return Manifest{}, err
	}
	var latest *Manifest
	for i := range manifests {
		m := &manifests[i]
		if m.Name != name {
			continue
		}
		if version != "" {
			if m.Version == version {
				return *m, nil
			}
			continue
		}
		if latest == nil || m.Version > latest.Version {
			latest = m
		}
	}
	if latest != nil {
		return *latest, nil
	}
	return Manifest{}, manifestNotFound(name, version)
}

// List returns all manifests in deterministic name/version order.
func (s *FileStore) List(ctx context.Context) ([]Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	manifests, err := s.load()
	if err != nil {
		return nil, err
	}
	slices.SortFunc(manifests, compareManifests)
	return manifests, nil
}

// Put validates and upserts a manifest by (name, version).
func (s *FileStore) Put(ctx context.Context, m Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	manifests, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range manifests {
		if manifests[i].Name == m.Name && manifests[i].Version == m.Version {
			manifests[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		manifests = append(manifests, m)
	}
	return s.save(manifests)
}

// Delete removes one manifest version, or every version when version is "".
func (s *FileStore) Delete(ctx context.Context, name, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	manifests, err := s.load()
	if err != nil {
		return err
	}
	kept := manifests[:0]
	for _, m := range manifests {
		if m.Name == name && (version == "" || m.Version == version) {
			continue
		}
		kept = append(kept, m)
	}
	return s.save(kept)
}

func (s *FileStore) load() ([]Manifest, error) {
	if s.path == "" {
		return nil, errEmptyStorePath
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("tool: read manifest store: %w", err)
	}
	var doc fileStoreDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("tool: parse manifest store %s: %w", s.path, err)
	}
	return doc.Manifests, nil
}

func (s *FileStore) save(manifests []Manifest) error {
	if s.path == "" {
		return errEmptyStorePath
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("tool: create manifest store dir: %w", err)
	}
	doc := fileStoreDocument{Version: fileStoreVersionV1, Manifests: manifests}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("tool: encode manifest store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("tool: write manifest store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("tool: replace manifest store: %w", err)
	}
	return nil
}

func compareManifests(a, b Manifest) int {
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
}

var _ Store = (*FileStore)(nil)
