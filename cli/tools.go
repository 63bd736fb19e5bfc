package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolrun/loader"
	"github.com/petal-labs/toolrun/tool"
)

// NewToolsCmd creates the "tools" command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Manage tool manifests",
	}
	cmd.PersistentFlags().String("store-path", "", "Manifest store path (default: ~/.toolrun/manifests.json; .db selects SQLite)")

	cmd.AddCommand(newToolsRegisterCmd())
	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsInspectCmd())
	cmd.AddCommand(newToolsUnregisterCmd())
	cmd.AddCommand(newToolsHealthCmd())

	return cmd
}

func newToolsRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <manifest-file>",
		Short: "Register tool manifests from a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsRegister,
	}
	return cmd
}

func runToolsRegister(cmd *cobra.Command, args []string) error {
	store, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(store)

	manifests, err := loader.LoadManifests(args[0])
	if err != nil {
		return exitError(exitInputParse, "%s", err)
	}

	for _, m := range manifests {
		if err := store.Put(cmd.Context(), m); err != nil {
			return exitError(exitRuntime, "registering %q: %v", m.Name, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Registered %d tool(s) from %s\n", len(manifests), args[0])
	return nil
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		RunE:  runToolsList,
	}
}

func runToolsList(cmd *cobra.Command, args []string) error {
	store, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(store)

	manifests, err := store.List(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "listing tools: %v", err)
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tVERSION\tTYPE\tEXECUTOR")
	for _, m := range manifests {
		version := strings.TrimSpace(m.Version)
		if version == "" {
			version = "-"
		}
		executor := strings.TrimSpace(m.Executor)
		if executor == "" {
			executor = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", m.Name, version, m.Type, executor)
	}
	return writer.Flush()
}

func newToolsInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <name>",
		Short: "Print a registered manifest as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsInspect,
	}
	cmd.Flags().String("tool-version", "", "Pin a manifest version (default: latest)")
	return cmd
}

func runToolsInspect(cmd *cobra.Command, args []string) error {
	store, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(store)

	version, _ := cmd.Flags().GetString("tool-version")
	m, err := store.GetManifest(cmd.Context(), args[0], version)
	if err != nil {
		return exitError(exitResolution, "%s", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return exitError(exitRuntime, "encoding manifest: %v", err)
	}
	_, _ = cmd.OutOrStdout().Write(append(data, '\n'))
	return nil
}

func newToolsUnregisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unregister <name>",
		Short: "Remove a tool from the registry",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsUnregister,
	}
	cmd.Flags().String("tool-version", "", "Remove one version only (default: all versions)")
	return cmd
}

func runToolsUnregister(cmd *cobra.Command, args []string) error {
	store, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(store)

	version, _ := cmd.Flags().GetString("tool-version")
	if err := store.Delete(cmd.Context(), args[0], version); err != nil {
		return exitError(exitRuntime, "unregistering %q: %v", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Unregistered tool: %s\n", args[0])
	return nil
}

func newToolsHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health [name]",
		Short: "Probe health endpoints for registered tools",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runToolsHealth,
	}
	cmd.Flags().Bool("all", false, "Probe every tool with health config")
	return cmd
}

func runToolsHealth(cmd *cobra.Command, args []string) error {
	store, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(store)

	all, _ := cmd.Flags().GetBool("all")
	var targets []tool.Manifest
	if all {
		manifests, err := store.List(cmd.Context())
		if err != nil {
			return exitError(exitRuntime, "listing tools: %v", err)
		}
		for _, m := range manifests {
			if m.Health != nil && strings.TrimSpace(m.Health.Endpoint) != "" {
				targets = append(targets, m)
			}
		}
	} else {
		if len(args) != 1 {
			return exitError(exitInputParse, "provide <name> or use --all")
		}
		m, err := store.GetManifest(cmd.Context(), args[0], "")
		if err != nil {
			return exitError(exitResolution, "%s", err)
		}
		targets = append(targets, m)
	}

	pool := tool.NewClientPool()
	defer pool.CloseIdle()
	prober := tool.NewHTTPProber(pool)

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tSTATE\tLATENCY_MS\tERROR")
	for _, m := range targets {
		report := prober.Probe(cmd.Context(), m)
		latency := "-"
		if report.LatencyMS > 0 {
			latency = strconv.FormatInt(report.LatencyMS, 10)
		}
		errText := "-"
		if strings.TrimSpace(report.ErrorMessage) != "" {
			errText = report.ErrorMessage
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", m.Name, report.State, latency, errText)
	}
	return writer.Flush()
}

// resolveStore opens the manifest store selected by --store-path or
// TOOLRUN_STORE_PATH. A .db or .sqlite extension selects the SQLite store;
// anything else is the JSON file store.
func resolveStore(cmd *cobra.Command) (tool.Store, error) {
	storePath, _ := cmd.Flags().GetString("store-path")
	if strings.TrimSpace(storePath) == "" {
		storePath = os.Getenv("TOOLRUN_STORE_PATH")
	}
	if strings.TrimSpace(storePath) == "" {
		fallback, err := tool.DefaultStorePath()
		if err != nil {
			return nil, exitError(exitRuntime, "resolving store path: %v", err)
		}
		storePath = fallback
	}

	switch strings.ToLower(filepath.Ext(storePath)) {
	case ".db", ".sqlite":
		store, err := tool.NewSQLiteStore(storePath)
		if err != nil {
			return nil, exitError(exitRuntime, "opening store: %v", err)
		}
		return store, nil
	default:
		return tool.NewFileStore(storePath), nil
	}
}

func closeStore(store tool.Store) {
	if closer, ok := store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func parseKeyValue(value string) (string, string, error) {
	parts := strings.SplitN(value, "=", 2)
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return "", "", errors.New("key is required")
	}
	if len(parts) == 1 {
		return "", "", errors.New("value is required")
	}
	return key, parts[1], nil
}

func parsePrimitiveValue(value string) any {
	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "\"") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return value
}
