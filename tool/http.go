package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/petal-labs/toolrun/envtmpl"
)

const (
	// defaultHTTPTimeout bounds a request that never specifies one.
	defaultHTTPTimeout = 30 * time.Second
	// maxResponseBody caps response reads to avoid unbounded memory growth.
	maxResponseBody = 10 << 20
)

// HTTPPrimitive issues outbound requests over the shared client pool.
// Transient failures (network errors and retryable statuses) are retried per
// the manifest retry policy; the policy-visible status of the final response
// is ordinary result data.
type HTTPPrimitive struct {
	pool     *ClientPool
	observer Observer
}

// NewHTTPPrimitive creates the HTTP primitive over an injected pool.
func NewHTTPPrimitive(pool *ClientPool, observer Observer) *HTTPPrimitive {
	if observer == nil {
		observer = NoopObserver{}
	}
	return &HTTPPrimitive{pool: pool, observer: observer}
}

// Kind implements Primitive.
func (p *HTTPPrimitive) Kind() PrimitiveType {
	return PrimitiveHTTP
}

type httpSpec struct {
	method  string
	url     string
	headers map[string]string
	body    string
	timeout time.Duration
	retry   RetryPolicy
}

func buildHTTPSpec(config map[string]string, params Params) (httpSpec, error) {
	rawURL := strings.TrimSpace(config[ConfigURL])
	if rawURL == "" {
		return httpSpec{}, newToolError(ErrorCodeConfiguration, "tool: http url is required", false, nil)
	}

	method := strings.ToUpper(strings.TrimSpace(config[ConfigMethod]))
	if method == "" {
		method = http.MethodGet
	}

	headers, err := decodeConfigMap(config, ConfigHeaders)
	if err != nil {
		return httpSpec{}, err
	}
	configEnv, err := decodeConfigMap(config, ConfigEnv)
	if err != nil {
		return httpSpec{}, err
	}

	// Placeholders first, then environment references, so parameters can
	// never be mistaken for secrets and vice versa.
	filled, err := fillPlaceholders(rawURL, params.User)
	if err != nil {
		return httpSpec{}, err
	}

	env := templateEnv(configEnv)
	resolvedURL, err := envtmpl.Resolve(filled, env)
	if err != nil {
		return httpSpec{}, newToolError(ErrorCodeConfiguration, "tool: resolve url template", false, err)
	}
	resolvedHeaders, err := envtmpl.ResolveMap(headers, env)
	if err != nil {
		return httpSpec{}, newToolError(ErrorCodeConfiguration, "tool: resolve header templates", false, err)
	}
	body, err := envtmpl.Resolve(config[ConfigBody], env)
	if err != nil {
		return httpSpec{}, newToolError(ErrorCodeConfiguration, "tool: resolve body template", false, err)
	}

	if resolvedHeaders == nil {
		resolvedHeaders = map[string]string{}
	}
	if err := applyAuth(resolvedHeaders, config, env); err != nil {
		return httpSpec{}, err
	}

	retry := RetryPolicy{
		MaxAttempts: configInt(config, ConfigRetryMax, 1),
		BackoffMS:   configInt(config, ConfigRetryBackoffMS, 0),
		Backoff:     BackoffKind(strings.TrimSpace(config[ConfigRetryBackoff])),
	}
	statuses, err := decodeConfigList(config, ConfigRetryableStatus)
	if err != nil {
		return httpSpec{}, err
	}
	for _, raw := range statuses {
		status, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || status <= 0 {
			return httpSpec{}, newToolError(ErrorCodeConfiguration,
				fmt.Sprintf("tool: retryable status %q is not a status code", raw), false, err)
		}
		retry.RetryableStatus = append(retry.RetryableStatus, status)
	}

	return httpSpec{
		method:  method,
		url:     resolvedURL,
		headers: resolvedHeaders,
		body:    body,
		timeout: configDuration(config, ConfigTimeoutMS, defaultHTTPTimeout),
		retry:   retry,
	}, nil
}

// fillPlaceholders substitutes {name} segments in a URL template from user
// parameters, escaping each value. A placeholder with no matching parameter
// is a precondition failure.
func fillPlaceholders(template string, user map[string]any) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(template) {
		open := strings.IndexByte(template[i:], '{')
		if open < 0 {
			out.WriteString(template[i:])
			break
		}
		out.WriteString(template[i : i+open])
		rest := template[i+open:]
		closing := strings.IndexByte(rest, '}')
		if closing < 0 {
			return "", newToolError(ErrorCodeConfiguration, "tool: unterminated {placeholder} in url", false, nil)
		}
		name := rest[1:closing]
		value, ok := user[name]
		if !ok {
			return "", withErrorDetails(
				newToolError(ErrorCodePrecondition,
					fmt.Sprintf("tool: url placeholder {%s} has no matching parameter", name), false, nil),
				map[string]any{"placeholder": name},
			)
		}
		rendered, err := renderArgValue(value)
		if err != nil {
			return "", newToolError(ErrorCodePrecondition, fmt.Sprintf("tool: url placeholder {%s}", name), false, err)
		}
		out.WriteString(url.PathEscape(rendered))
		i += open + closing + 1
	}
	return out.String(), nil
}

func applyAuth(headers map[string]string, config map[string]string, env map[string]string) error {
	authType := AuthType(strings.TrimSpace(config[ConfigAuthType]))
	if authType == AuthNone {
		return nil
	}

	token, err := envtmpl.Resolve(config[ConfigAuthToken], env)
	if err != nil {
		return newToolError(ErrorCodeConfiguration, "tool: resolve auth token", false, err)
	}
	if strings.TrimSpace(token) == "" {
		return newToolError(ErrorCodeConfiguration, "tool: auth token is required for "+string(authType)+" auth", false, nil)
	}

	switch authType {
	case AuthBearer:
		headers["Authorization"] = "Bearer " + token
	case AuthAPIKey:
		header := strings.TrimSpace(config[ConfigAuthHeader])
		if header == "" {
			header = "X-API-Key"
		}
		headers[header] = token
	default:
		return newToolError(ErrorCodeConfiguration, "tool: unknown auth type "+string(authType), false, nil)
	}
	return nil
}

// Execute implements Primitive.
func (p *HTTPPrimitive) Execute(ctx context.Context, config map[string]string, params Params) (Outcome, error) {
	spec, err := buildHTTPSpec(config, params)
	if err != nil {
		return Outcome{}, err
	}

	client := p.pool.Client(spec.timeout)
	data, attempts, err := executeWithRetry(ctx, spec.retry, retryMeta{
		toolName:  params.ToolName(),
		primitive: PrimitiveHTTP,
	}, p.observer, func(attemptCtx context.Context, _ int) (*HTTPData, error) {
		return p.attempt(attemptCtx, client, spec)
	})
	if err != nil {
		if toolErr, ok := toolErrorFrom(err); ok {
			return Outcome{Attempts: attempts}, withErrorDetails(toolErr, map[string]any{"attempts": attempts})
		}
		return Outcome{Attempts: attempts}, newToolError(ErrorCodeHTTP, "tool: http invoke failed", false, err)
	}
	return Outcome{HTTP: data, Attempts: attempts}, nil
}

func (p *HTTPPrimitive) attempt(ctx context.Context, client *http.Client, spec httpSpec) (*HTTPData, error) {
	var bodyReader io.Reader
	if spec.body != "" {
		bodyReader = strings.NewReader(spec.body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, spec.url, bodyReader)
	if err != nil {
		return nil, newToolError(ErrorCodeConfiguration, "tool: build http request", false, err)
	}
	for key, value := range spec.headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, newToolError(ErrorCodeTimeout, "tool: http request timed out", true, err)
			}
			return nil, newToolError(ErrorCodeCanceled, "tool: http request canceled", false, err)
		}
		return nil, newToolError(ErrorCodeHTTP, "tool: http request failed", true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, newToolError(ErrorCodeDecode, "tool: read http response body", true, err)
	}

	data := &HTTPData{
		ResponseBody: decodeOutput(body),
		StatusCode:   resp.StatusCode,
		Headers:      flattenHeaders(resp.Header),
	}

	if resp.StatusCode >= 400 {
		retryable := statusRetryable(resp.StatusCode, spec.retry)
		message := strings.TrimSpace(data.ResponseBody)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, withErrorDetails(
			newToolError(ErrorCodeHTTP,
				fmt.Sprintf("tool: http status %d: %s", resp.StatusCode, message), retryable, nil),
			map[string]any{"status_code": resp.StatusCode},
		)
	}

	return data, nil
}

func flattenHeaders(header http.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	out := make(map[string]string, len(header))
	for key, values := range header {
		out[key] = strings.Join(values, ", ")
	}
	return out
}

var _ Primitive = (*HTTPPrimitive)(nil)
