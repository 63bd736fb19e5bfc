// Package loader reads tool manifest files in JSON and YAML formats.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/toolrun/tool"
)

// manifestDocument is the multi-manifest file shape.
type manifestDocument struct {
	Manifests []tool.Manifest `json:"manifests"`
}

// LoadManifests reads a manifest file and returns its validated manifests.
// A file may hold a single manifest object, a bare list, or a document with
// a top-level "manifests" key.
func LoadManifests(path string) ([]tool.Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	manifests, err := loadManifests(data, path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return manifests, nil
}

func loadManifests(data []byte, path string) ([]tool.Manifest, error) {
	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}

	manifests, err := decodeManifests(jsonData)
	if err != nil {
		return nil, err
	}
	if len(manifests) == 0 {
		return nil, fmt.Errorf("no manifests found")
	}
	for _, m := range manifests {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	return manifests, nil
}

// decodeManifests tries the three accepted document shapes in order:
// document with "manifests", bare list, single object.
func decodeManifests(jsonData []byte) ([]tool.Manifest, error) {
	trimmed := strings.TrimSpace(string(jsonData))
	if strings.HasPrefix(trimmed, "[") {
		var list []tool.Manifest
		if err := json.Unmarshal(jsonData, &list); err != nil {
			return nil, fmt.Errorf("parsing manifest list: %w", err)
		}
		return list, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("parsing manifest file: %w", err)
	}
	if _, ok := probe["manifests"]; ok {
		var doc manifestDocument
		if err := json.Unmarshal(jsonData, &doc); err != nil {
			return nil, fmt.Errorf("parsing manifest document: %w", err)
		}
		return doc.Manifests, nil
	}

	var single tool.Manifest
	if err := json.Unmarshal(jsonData, &single); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return []tool.Manifest{single}, nil
}

// toJSON converts data to JSON bytes, handling YAML conversion if the path
// indicates a YAML file.
func toJSON(data []byte, path string) ([]byte, error) {
	if isYAML(path) {
		return yamlToJSON(data)
	}
	return data, nil
}

// isYAML returns true if the file path has a YAML extension.
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// yamlToJSON converts raw bytes from YAML format to JSON bytes.
// YAML -> map[string]any -> JSON bytes -> typed struct.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return json.Marshal(raw)
}
