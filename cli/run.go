package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	toolrunotel "github.com/petal-labs/toolrun/otel"
	"github.com/petal-labs/toolrun/tool"
)

// Exit codes mirror the error taxonomy so shell callers can branch without
// parsing JSON.
const (
	exitSuccess       = 0
	exitResolution    = 1
	exitConfiguration = 2
	exitPrecondition  = 3
	exitExecution     = 4
	exitInputParse    = 5
	exitRuntime       = 6
	exitTimeout       = 10
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <tool>",
		Short: "Execute a registered tool and print its result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().StringArray("param", nil, "User parameter KEY=VALUE (repeatable)")
	cmd.Flags().String("param-json", "", "User parameters as a JSON object")
	cmd.Flags().String("source-path", "", "Source file for script tools")
	cmd.Flags().String("tool-version", "", "Pin a manifest version (default: latest)")
	cmd.Flags().Duration("timeout", 5*time.Minute, "Execution timeout")
	cmd.Flags().String("store-path", "", "Manifest store path (default: ~/.toolrun/manifests.json)")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP collector endpoint for trace export")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])

	store, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(store)

	params, err := parseRunParams(cmd)
	if err != nil {
		return exitError(exitInputParse, "parsing parameters: %v", err)
	}

	observer, shutdown, err := resolveObserver(cmd)
	if err != nil {
		return exitError(exitRuntime, "configuring telemetry: %v", err)
	}
	defer shutdown()

	executor, err := tool.NewExecutor(tool.ExecutorConfig{
		Source:   store,
		Observer: observer,
	})
	if err != nil {
		return exitError(exitRuntime, "creating executor: %v", err)
	}
	defer executor.Close()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	version, _ := cmd.Flags().GetString("tool-version")
	result := executor.ExecuteVersion(ctx, name, version, params)

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return exitError(exitRuntime, "encoding result: %v", err)
	}
	_, _ = cmd.OutOrStdout().Write(append(data, '\n'))

	if result.Success() {
		return nil
	}
	return &ExitError{Code: exitCodeFor(result.Err), Message: result.Err.Error()}
}

// parseRunParams builds invocation parameters from --param, --param-json, and
// --source-path.
func parseRunParams(cmd *cobra.Command) (tool.Params, error) {
	user := map[string]any{}

	pairs, _ := cmd.Flags().GetStringArray("param")
	for _, pair := range pairs {
		key, value, err := parseKeyValue(pair)
		if err != nil {
			return tool.Params{}, fmt.Errorf("invalid --param %q: %w", pair, err)
		}
		user[key] = parsePrimitiveValue(value)
	}

	paramJSON, _ := cmd.Flags().GetString("param-json")
	if strings.TrimSpace(paramJSON) != "" {
		var obj map[string]any
		if err := json.Unmarshal([]byte(paramJSON), &obj); err != nil {
			return tool.Params{}, fmt.Errorf("invalid --param-json: %w", err)
		}
		for key, value := range obj {
			user[key] = value
		}
	}

	params := tool.Params{User: user}
	sourcePath, _ := cmd.Flags().GetString("source-path")
	if strings.TrimSpace(sourcePath) != "" {
		params.Internal = map[string]any{tool.InternalSourcePath: sourcePath}
	}
	return params, nil
}

// resolveObserver builds the tool observer, exporting traces when an OTLP
// endpoint is configured.
func resolveObserver(cmd *cobra.Command) (tool.Observer, func(), error) {
	endpoint, _ := cmd.Flags().GetString("otlp-endpoint")

	shutdownTracing, err := toolrunotel.SetupTracing(cmd.Context(), toolrunotel.TracingConfig{
		Endpoint: endpoint,
		Insecure: true,
	})
	if err != nil {
		return nil, nil, err
	}

	observer, err := toolrunotel.NewToolObserver(
		otelapi.GetMeterProvider().Meter("toolrun/tool"),
		otelapi.GetTracerProvider().Tracer("toolrun/tool"),
	)
	if err != nil {
		return nil, nil, err
	}

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}
	return observer, shutdown, nil
}

// exitCodeFor maps a tool error to its process exit code.
func exitCodeFor(err *tool.ToolError) int {
	if err == nil {
		return exitSuccess
	}
	switch err.Code {
	case tool.ErrorCodeResolution:
		return exitResolution
	case tool.ErrorCodeConfiguration:
		return exitConfiguration
	case tool.ErrorCodePrecondition:
		return exitPrecondition
	case tool.ErrorCodeTimeout:
		return exitTimeout
	default:
		return exitExecution
	}
}
