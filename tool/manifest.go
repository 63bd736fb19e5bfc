package tool

import (
	"strconv"
	"strings"
	"time"
)

// ToolType classifies one link in an execution chain.
type ToolType string

const (
	// TypeSubprocess runs an external process directly.
	TypeSubprocess ToolType = "subprocess"
	// TypeScript runs a local source file through an interpreter subprocess.
	// Script tools require the source-path internal parameter.
	TypeScript ToolType = "script"
	// TypeHTTP issues an outbound HTTP request.
	TypeHTTP ToolType = "http"
	// TypeDelegating delegates execution to another tool via Executor.
	TypeDelegating ToolType = "delegating"
)

// Terminal reports whether the type is a terminal execution primitive.
func (t ToolType) Terminal() bool {
	switch t {
	case TypeSubprocess, TypeScript, TypeHTTP:
		return true
	default:
		return false
	}
}

// Primitive maps a terminal tool type to its primitive kind.
func (t ToolType) Primitive() PrimitiveType {
	switch t {
	case TypeSubprocess, TypeScript:
		return PrimitiveSubprocess
	case TypeHTTP:
		return PrimitiveHTTP
	default:
		return ""
	}
}

// PrimitiveType is one of the two terminal execution kinds.
type PrimitiveType string

const (
	PrimitiveSubprocess PrimitiveType = "subprocess"
	PrimitiveHTTP       PrimitiveType = "http"
)

// Manifest describes one link in an execution chain.
type Manifest struct {
	Name        string            `json:"name" yaml:"name"`
	Version     string            `json:"version,omitempty" yaml:"version,omitempty"`
	Type        ToolType          `json:"type" yaml:"type"`
	Executor    string            `json:"executor,omitempty" yaml:"executor,omitempty"`
	Config      map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
	Health      *HealthConfig     `json:"health,omitempty" yaml:"health,omitempty"`
	ContentHash string            `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
}

// Validate checks structural manifest invariants.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return newToolError(ErrorCodeResolution, "tool: manifest name is empty", false, nil)
	}
	switch m.Type {
	case TypeSubprocess, TypeScript, TypeHTTP, TypeDelegating:
	default:
		return newToolError(ErrorCodeResolution, "tool: manifest "+m.Name+" has unknown type "+string(m.Type), false, nil)
	}
	if m.Executor == "" && !m.Type.Terminal() {
		return newToolError(ErrorCodeResolution, "tool: manifest "+m.Name+" has no executor and is not a terminal primitive", false, nil)
	}
	return nil
}

// HealthConfig defines optional background health-check settings for
// HTTP-backed tools.
type HealthConfig struct {
	Endpoint           string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Method             string `json:"method,omitempty" yaml:"method,omitempty"`
	Schedule           string `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	TimeoutMS          int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	UnhealthyThreshold int    `json:"unhealthy_threshold,omitempty" yaml:"unhealthy_threshold,omitempty"`
}

// BackoffKind selects the retry backoff curve.
type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffLinear      BackoffKind = "linear"
)

// RetryPolicy defines HTTP primitive retry behavior.
type RetryPolicy struct {
	MaxAttempts     int         `json:"max_attempts,omitempty"`
	BackoffMS       int         `json:"backoff_ms,omitempty"`
	Backoff         BackoffKind `json:"backoff,omitempty"`
	RetryableStatus []int       `json:"retryable_status,omitempty"`
}

// AuthType selects the HTTP auth injection scheme.
type AuthType string

const (
	AuthNone   AuthType = ""
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "api-key"
)

// AuthConfig describes HTTP request authentication.
type AuthConfig struct {
	Type   AuthType `json:"type,omitempty"`
	Token  string   `json:"token,omitempty"`
	Header string   `json:"header,omitempty"`
}

// Config keys recognized in a merged configuration map. Values are flat
// strings; list-valued keys hold JSON arrays.
const (
	ConfigCommand       = "command"
	ConfigArgs          = "args"
	ConfigEnv           = "env"
	ConfigWorkingDir    = "working_dir"
	ConfigTimeoutMS     = "timeout_ms"
	ConfigCaptureOutput = "capture_output"
	ConfigStdin         = "stdin"

	ConfigMethod          = "method"
	ConfigURL             = "url"
	ConfigHeaders         = "headers"
	ConfigBody            = "body"
	ConfigRetryMax        = "retry_max_attempts"
	ConfigRetryBackoffMS  = "retry_backoff_ms"
	ConfigRetryBackoff    = "retry_backoff"
	ConfigRetryableStatus = "retryable_status"
	ConfigAuthType        = "auth_type"
	ConfigAuthToken       = "auth_token"
	ConfigAuthHeader      = "auth_header"
)

func configDuration(config map[string]string, key string, fallback time.Duration) time.Duration {
	raw, ok := config[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	ms, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func configBool(config map[string]string, key string, fallback bool) bool {
	raw, ok := config[key]
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return parsed
}

func configInt(config map[string]string, key string, fallback int) int {
	raw, ok := config[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return parsed
}
