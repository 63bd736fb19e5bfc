package tool

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/petal-labs/toolrun/envtmpl"
)

const (
	// defaultSubprocessTimeout bounds a process that never specifies one.
	defaultSubprocessTimeout = 300 * time.Second
	// subprocessReapDelay is how long after a context kill we wait for the
	// process to be reaped before SIGKILL.
	subprocessReapDelay = 2 * time.Second
)

// SubprocessPrimitive spawns and supervises one external process per
// invocation. The process's exit code is ordinary result data; only
// infrastructure failures (spawn failure, permission denied, timeout kill)
// surface as errors. No process or pipe survives the call on any exit path.
type SubprocessPrimitive struct{}

// NewSubprocessPrimitive creates the subprocess primitive.
func NewSubprocessPrimitive() *SubprocessPrimitive {
	return &SubprocessPrimitive{}
}

// Kind implements Primitive.
func (p *SubprocessPrimitive) Kind() PrimitiveType {
	return PrimitiveSubprocess
}

type subprocessSpec struct {
	command    string
	args       []string
	env        map[string]string
	workingDir string
	timeout    time.Duration
	capture    bool
	stdin      string
}

func buildSubprocessSpec(config map[string]string, params Params) (subprocessSpec, error) {
	command := strings.TrimSpace(config[ConfigCommand])
	if command == "" {
		return subprocessSpec{}, newToolError(ErrorCodeConfiguration, "tool: subprocess command is required", false, nil)
	}

	configArgs, err := decodeConfigList(config, ConfigArgs)
	if err != nil {
		return subprocessSpec{}, err
	}
	configEnv, err := decodeConfigMap(config, ConfigEnv)
	if err != nil {
		return subprocessSpec{}, err
	}

	env := templateEnv(configEnv)
	command, err = envtmpl.Resolve(command, env)
	if err != nil {
		return subprocessSpec{}, newToolError(ErrorCodeConfiguration, "tool: resolve command template", false, err)
	}
	configArgs, err = envtmpl.ResolveSlice(configArgs, env)
	if err != nil {
		return subprocessSpec{}, newToolError(ErrorCodeConfiguration, "tool: resolve args template", false, err)
	}

	args, err := BuildCommandArgs(configArgs, params)
	if err != nil {
		return subprocessSpec{}, newToolError(ErrorCodeConfiguration, "", false, err)
	}

	return subprocessSpec{
		command:    command,
		args:       args,
		env:        configEnv,
		workingDir: strings.TrimSpace(config[ConfigWorkingDir]),
		timeout:    configDuration(config, ConfigTimeoutMS, defaultSubprocessTimeout),
		capture:    configBool(config, ConfigCaptureOutput, true),
		stdin:      config[ConfigStdin],
	}, nil
}

// Execute implements Primitive.
func (p *SubprocessPrimitive) Execute(ctx context.Context, config map[string]string, params Params) (Outcome, error) {
	spec, err := buildSubprocessSpec(config, params)
	if err != nil {
		return Outcome{}, err
	}

	// The configured timeout always applies; context.WithTimeout keeps the
	// earlier of it and any caller deadline.
	execCtx := ctx
	cancel := context.CancelFunc(func() {})
	if spec.timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, spec.timeout)
	}
	defer cancel()

	// #nosec G204 -- command/args come from registered manifest configuration.
	cmd := exec.CommandContext(execCtx, spec.command, spec.args...)
	cmd.WaitDelay = subprocessReapDelay
	if len(spec.env) > 0 {
		cmd.Env = append(os.Environ(), flattenEnv(spec.env)...)
	}
	if spec.workingDir != "" {
		cmd.Dir = spec.workingDir
	}
	if spec.stdin != "" {
		cmd.Stdin = strings.NewReader(spec.stdin)
	}

	var stdout, stderr bytes.Buffer
	if spec.capture {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	waitErr := cmd.Run()

	if ctxErr := execCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return Outcome{}, withErrorDetails(
				newToolError(ErrorCodeTimeout, "tool: subprocess timed out", false, ctxErr),
				map[string]any{"timeout_ms": spec.timeout.Milliseconds()},
			)
		}
		return Outcome{}, newToolError(ErrorCodeCanceled, "tool: subprocess canceled", false, ctxErr)
	}

	data := &ProcessData{
		Stdout: decodeOutput(stdout.Bytes()),
		Stderr: decodeOutput(stderr.Bytes()),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			// The process ran to completion with a non-zero status. That is
			// result data, not a primitive failure.
			data.ReturnCode = exitErr.ExitCode()
			return Outcome{Process: data, Attempts: 1}, nil
		}
		return Outcome{}, classifySpawnError(spec.command, waitErr)
	}

	data.ReturnCode = 0
	return Outcome{Process: data, Attempts: 1}, nil
}

func classifySpawnError(command string, err error) error {
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return newToolError(ErrorCodeSubprocess, "tool: command not found: "+command, false, err)
	case errors.Is(err, fs.ErrPermission):
		return newToolError(ErrorCodeSubprocess, "tool: permission denied: "+command, false, err)
	default:
		return newToolError(ErrorCodeSubprocess, "tool: spawn "+command, false, err)
	}
}

// decodeOutput converts captured bytes to text, coercing invalid UTF-8
// instead of failing the invocation.
func decodeOutput(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}

func flattenEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(values))
	for _, key := range keys {
		out = append(out, key+"="+values[key])
	}
	return out
}

var _ Primitive = (*SubprocessPrimitive)(nil)
