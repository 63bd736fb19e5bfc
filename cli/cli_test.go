package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// newTestRoot creates a fresh cobra root command wired to all subcommands.
// Each test gets an isolated command tree to avoid shared state.
func newTestRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "toolrun",
		SilenceUsage: true,
	}
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewToolsCmd())
	return root
}

// executeCommand runs a cobra command with the given args and captures stdout/stderr.
func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// writeTestFile creates a temporary file with the given content and returns its path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const echoManifestJSON = `{
  "name": "echo",
  "version": "1.0.0",
  "type": "subprocess",
  "config": {"command": "echo"}
}`

func newTestStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "manifests.json")
}

func registerEcho(t *testing.T, storePath string) {
	t.Helper()
	manifestPath := writeTestFile(t, "echo.json", echoManifestJSON)
	_, _, err := executeCommand(newTestRoot(), "tools", "register", manifestPath, "--store-path", storePath)
	if err != nil {
		t.Fatalf("tools register error = %v", err)
	}
}

func TestToolsRegisterAndList(t *testing.T) {
	storePath := newTestStorePath(t)
	registerEcho(t, storePath)

	stdout, _, err := executeCommand(newTestRoot(), "tools", "list", "--store-path", storePath)
	if err != nil {
		t.Fatalf("tools list error = %v", err)
	}
	if !strings.Contains(stdout, "echo") || !strings.Contains(stdout, "1.0.0") {
		t.Fatalf("tools list output = %q, want echo 1.0.0 row", stdout)
	}
}

func TestToolsRegisterRejectsInvalidManifest(t *testing.T) {
	storePath := newTestStorePath(t)
	manifestPath := writeTestFile(t, "bad.json", `{"name": "", "type": "subprocess"}`)

	_, _, err := executeCommand(newTestRoot(), "tools", "register", manifestPath, "--store-path", storePath)
	if err == nil {
		t.Fatal("tools register error = nil, want validation failure")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitInputParse {
		t.Fatalf("error = %v, want ExitError with input-parse code", err)
	}
}

func TestToolsInspect(t *testing.T) {
	storePath := newTestStorePath(t)
	registerEcho(t, storePath)

	stdout, _, err := executeCommand(newTestRoot(), "tools", "inspect", "echo", "--store-path", storePath)
	if err != nil {
		t.Fatalf("tools inspect error = %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(stdout), &m); err != nil {
		t.Fatalf("inspect output is not JSON: %v\n%s", err, stdout)
	}
	if m["name"] != "echo" {
		t.Fatalf("inspect name = %v, want echo", m["name"])
	}
}

func TestToolsUnregister(t *testing.T) {
	storePath := newTestStorePath(t)
	registerEcho(t, storePath)

	if _, _, err := executeCommand(newTestRoot(), "tools", "unregister", "echo", "--store-path", storePath); err != nil {
		t.Fatalf("tools unregister error = %v", err)
	}

	_, _, err := executeCommand(newTestRoot(), "tools", "inspect", "echo", "--store-path", storePath)
	if err == nil {
		t.Fatal("tools inspect after unregister = nil error, want failure")
	}
}

func TestRunExecutesTool(t *testing.T) {
	storePath := newTestStorePath(t)
	registerEcho(t, storePath)

	stdout, _, err := executeCommand(newTestRoot(),
		"run", "echo", "--store-path", storePath, "--param", "message=hi")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("run output is not JSON: %v\n%s", err, stdout)
	}
	if result["status"] != "success" {
		t.Fatalf("status = %v, want success\n%s", result["status"], stdout)
	}
	data, ok := result["data"].(map[string]any)
	if !ok {
		t.Fatalf("data missing from result: %s", stdout)
	}
	if got, _ := data["stdout"].(string); !strings.Contains(got, "--message hi") {
		t.Fatalf("stdout = %q, want the user parameter rendered as a flag", got)
	}
}

func TestRunUnknownToolExitCode(t *testing.T) {
	storePath := newTestStorePath(t)

	stdout, _, err := executeCommand(newTestRoot(), "run", "missing", "--store-path", storePath)
	if err == nil {
		t.Fatal("run error = nil, want resolution failure")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want ExitError", err)
	}
	if exitErr.Code != exitResolution {
		t.Fatalf("exit code = %d, want %d", exitErr.Code, exitResolution)
	}
	// The normalized error result still goes to stdout for machine callers.
	var result map[string]any
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("run output is not JSON: %v\n%s", err, stdout)
	}
	if result["status"] != "error" {
		t.Fatalf("status = %v, want error", result["status"])
	}
}

func TestRunParamJSON(t *testing.T) {
	storePath := newTestStorePath(t)
	registerEcho(t, storePath)

	stdout, _, err := executeCommand(newTestRoot(),
		"run", "echo", "--store-path", storePath, "--param-json", `{"count": 3}`)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("run output is not JSON: %v\n%s", err, stdout)
	}
	data := result["data"].(map[string]any)
	if got, _ := data["stdout"].(string); !strings.Contains(got, "--count 3") {
		t.Fatalf("stdout = %q, want --count 3", got)
	}
}

func TestRunInvalidParam(t *testing.T) {
	storePath := newTestStorePath(t)
	registerEcho(t, storePath)

	_, _, err := executeCommand(newTestRoot(),
		"run", "echo", "--store-path", storePath, "--param", "novalue")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitInputParse {
		t.Fatalf("error = %v, want input-parse ExitError", err)
	}
}

func TestRunSQLiteStorePath(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "toolrun.db")
	registerEcho(t, storePath)

	stdout, _, err := executeCommand(newTestRoot(), "run", "echo", "--store-path", storePath)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if !strings.Contains(stdout, `"status": "success"`) {
		t.Fatalf("run output = %q, want success status", stdout)
	}
}
