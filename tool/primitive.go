package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Outcome is the primitive-specific payload of a successful execution.
// Exactly one of Process and HTTP is set.
type Outcome struct {
	Process  *ProcessData
	HTTP     *HTTPData
	Attempts int
}

// Primitive is a terminal execution kind. Implementations are stateless with
// respect to invocations and safe for concurrent use. New kinds are added by
// explicit registration on the Executor, not by string matching at call
// sites.
type Primitive interface {
	Kind() PrimitiveType
	// Execute runs one invocation against the merged chain configuration.
	// Infrastructure failures return a *ToolError; domain-level outcomes
	// (non-zero exit codes, HTTP statuses within policy) are data.
	Execute(ctx context.Context, config map[string]string, params Params) (Outcome, error)
}

// templateEnv builds the substitution environment for ${NAME} references:
// the host process environment overlaid with the config env block, config
// values winning.
func templateEnv(configEnv map[string]string) map[string]string {
	host := os.Environ()
	env := make(map[string]string, len(host)+len(configEnv))
	for _, entry := range host {
		if idx := strings.IndexByte(entry, '='); idx > 0 {
			env[entry[:idx]] = entry[idx+1:]
		}
	}
	for key, value := range configEnv {
		env[key] = value
	}
	return env
}

func decodeConfigList(config map[string]string, key string) ([]string, error) {
	raw, ok := config[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, newToolError(ErrorCodeConfiguration,
			fmt.Sprintf("tool: config %q must be a JSON string array", key), false, err)
	}
	return out, nil
}

func decodeConfigMap(config map[string]string, key string) (map[string]string, error) {
	raw, ok := config[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, newToolError(ErrorCodeConfiguration,
			fmt.Sprintf("tool: config %q must be a JSON string object", key), false, err)
	}
	return out, nil
}
