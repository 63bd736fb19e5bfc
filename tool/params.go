package tool

import (
	"fmt"
	"slices"
	"strconv"
)

// InternalSourcePath is the reserved internal parameter carrying the resolved
// local source file for script tools. It becomes the leading positional
// argument and never appears among user-visible flags.
const InternalSourcePath = "source_path"

// InternalToolName carries the resolved tool name for observation labeling.
const InternalToolName = "tool_name"

// Params separates wiring values injected by the orchestration layer from
// user-supplied invocation arguments. The two-field split replaces the
// original naming-convention marker so internal values can never leak into
// primitive-visible user arguments.
type Params struct {
	// Internal carries orchestrator-to-primitive wiring, e.g. source_path.
	Internal map[string]any
	// User carries caller-supplied named values: strings, numbers,
	// booleans, and lists thereof.
	User map[string]any
}

// ToolName returns the internal tool-name parameter, or "".
func (p Params) ToolName() string {
	name, _ := p.Internal[InternalToolName].(string)
	return name
}

// SourcePath returns the internal source-path parameter, if set.
func (p Params) SourcePath() (string, bool) {
	raw, ok := p.Internal[InternalSourcePath]
	if !ok {
		return "", false
	}
	path, ok := raw.(string)
	if !ok || path == "" {
		return "", false
	}
	return path, true
}

// BuildCommandArgs converts params into a subprocess argument vector.
//
// The internal source path, when present, is inserted as the leading
// positional argument. User params follow as flag-style arguments in sorted
// name order: `--name value` for scalars, a bare `--name` for true booleans
// (false booleans are omitted), and a repeated `--name value` per element
// for lists.
func BuildCommandArgs(configArgs []string, params Params) ([]string, error) {
	args := make([]string, 0, len(configArgs)+2*len(params.User)+1)
	if path, ok := params.SourcePath(); ok {
		args = append(args, path)
	}
	args = append(args, configArgs...)

	names := make([]string, 0, len(params.User))
	for name := range params.User {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		flag := "--" + name
		switch value := params.User[name].(type) {
		case bool:
			if value {
				args = append(args, flag)
			}
		case []any:
			for _, item := range value {
				rendered, err := renderArgValue(item)
				if err != nil {
					return nil, fmt.Errorf("tool: parameter %q: %w", name, err)
				}
				args = append(args, flag, rendered)
			}
		case []string:
			for _, item := range value {
				args = append(args, flag, item)
			}
		default:
			rendered, err := renderArgValue(value)
			if err != nil {
				return nil, fmt.Errorf("tool: parameter %q: %w", name, err)
			}
			args = append(args, flag, rendered)
		}
	}
	return args, nil
}

func renderArgValue(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		// JSON numbers decode as float64; render integral values plainly.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case nil:
		return "", fmt.Errorf("value is null")
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}
