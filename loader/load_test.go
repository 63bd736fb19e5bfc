package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/petal-labs/toolrun/tool"
)

func writeManifestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadManifests_SingleJSON(t *testing.T) {
	path := writeManifestFile(t, "echo.json", `{
		"name": "echo",
		"version": "1.0.0",
		"type": "subprocess",
		"config": {"command": "echo"}
	}`)

	manifests, err := LoadManifests(path)
	if err != nil {
		t.Fatalf("LoadManifests() error = %v", err)
	}
	if len(manifests) != 1 {
		t.Fatalf("len(manifests) = %d, want 1", len(manifests))
	}
	if manifests[0].Name != "echo" || manifests[0].Type != tool.TypeSubprocess {
		t.Fatalf("manifest = %+v, want echo subprocess", manifests[0])
	}
}

func TestLoadManifests_SingleYAML(t *testing.T) {
	path := writeManifestFile(t, "fetch.yaml", `
name: fetch
version: 1.0.0
type: http
config:
  url: https://api.example.com/items
  auth_type: bearer
  auth_token: ${API_TOKEN:-}
`)

	manifests, err := LoadManifests(path)
	if err != nil {
		t.Fatalf("LoadManifests() error = %v", err)
	}
	if len(manifests) != 1 {
		t.Fatalf("len(manifests) = %d, want 1", len(manifests))
	}
	if manifests[0].Type != tool.TypeHTTP {
		t.Fatalf("Type = %q, want %q", manifests[0].Type, tool.TypeHTTP)
	}
	if manifests[0].Config[tool.ConfigAuthToken] != "${API_TOKEN:-}" {
		t.Fatalf("auth_token = %q, want the unresolved template preserved", manifests[0].Config[tool.ConfigAuthToken])
	}
}

func TestLoadManifests_DocumentWithManifestsKey(t *testing.T) {
	path := writeManifestFile(t, "tools.yaml", `
manifests:
  - name: summarize
    type: delegating
    executor: python
  - name: python
    type: subprocess
    config:
      command: python3
`)

	manifests, err := LoadManifests(path)
	if err != nil {
		t.Fatalf("LoadManifests() error = %v", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("len(manifests) = %d, want 2", len(manifests))
	}
	if manifests[0].Executor != "python" {
		t.Fatalf("Executor = %q, want %q", manifests[0].Executor, "python")
	}
}

func TestLoadManifests_BareListJSON(t *testing.T) {
	path := writeManifestFile(t, "tools.json", `[
		{"name": "a", "type": "subprocess", "config": {"command": "true"}},
		{"name": "b", "type": "http", "config": {"url": "https://example.com"}}
	]`)

	manifests, err := LoadManifests(path)
	if err != nil {
		t.Fatalf("LoadManifests() error = %v", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("len(manifests) = %d, want 2", len(manifests))
	}
}

func TestLoadManifests_ValidationFailure(t *testing.T) {
	path := writeManifestFile(t, "bad.json", `{"name": "", "type": "subprocess"}`)

	if _, err := LoadManifests(path); err == nil {
		t.Fatal("LoadManifests() error = nil, want validation failure")
	}
}

func TestLoadManifests_UnknownType(t *testing.T) {
	path := writeManifestFile(t, "bad.yaml", "name: x\ntype: teleport\n")

	if _, err := LoadManifests(path); err == nil {
		t.Fatal("LoadManifests() error = nil, want unknown type failure")
	}
}

func TestLoadManifests_EmptyDocument(t *testing.T) {
	path := writeManifestFile(t, "empty.json", `{"manifests": []}`)

	if _, err := LoadManifests(path); err == nil {
		t.Fatal("LoadManifests() error = nil, want empty document failure")
	}
}

func TestLoadManifests_MalformedYAML(t *testing.T) {
	path := writeManifestFile(t, "broken.yaml", "name: [unclosed\n")

	if _, err := LoadManifests(path); err == nil {
		t.Fatal("LoadManifests() error = nil, want parse failure")
	}
}

func TestLoadManifests_MissingFile(t *testing.T) {
	if _, err := LoadManifests(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("LoadManifests() error = nil, want read failure")
	}
}
