package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxConcurrent bounds simultaneous invocations per executor.
const DefaultMaxConcurrent = 256

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// Source resolves manifests. Required.
	Source Source
	// Pool is the shared HTTP client pool. A new pool is created when nil;
	// either way the executor owns it and drains it on Close.
	Pool *ClientPool
	// Observer receives invocation observations. Defaults to NoopObserver.
	Observer Observer
	// MaxConcurrent caps in-flight invocations. Defaults to
	// DefaultMaxConcurrent.
	MaxConcurrent int
}

// Executor is the façade over chain resolution, configuration merging, and
// the terminal primitives. One Executor serves many concurrent invocations;
// it holds no per-invocation state beyond the bounded-concurrency semaphore.
type Executor struct {
	resolver   *Resolver
	pool       *ClientPool
	observer   Observer
	primitives map[PrimitiveType]Primitive
	sem        chan struct{}
}

// NewExecutor creates an executor with the two built-in primitives
// registered.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("tool: executor requires a manifest source")
	}
	if cfg.Pool == nil {
		cfg.Pool = NewClientPool()
	}
	if cfg.Observer == nil {
		cfg.Observer = NoopObserver{}
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}

	e := &Executor{
		resolver:   NewResolver(cfg.Source),
		pool:       cfg.Pool,
		observer:   cfg.Observer,
		primitives: make(map[PrimitiveType]Primitive, 2),
		sem:        make(chan struct{}, cfg.MaxConcurrent),
	}
	e.Register(NewSubprocessPrimitive())
	e.Register(NewHTTPPrimitive(cfg.Pool, cfg.Observer))
	return e, nil
}

// Register installs a primitive for its kind, replacing any previous one.
// Adding an execution kind is an explicit registration here, never a string
// branch at a call site.
func (e *Executor) Register(p Primitive) {
	e.primitives[p.Kind()] = p
}

// Execute resolves the tool's chain and runs it to completion, returning a
// normalized result on every path. The latest registered version is used;
// see ExecuteVersion.
func (e *Executor) Execute(ctx context.Context, name string, params Params) Result {
	return e.ExecuteVersion(ctx, name, "", params)
}

// ExecuteVersion is Execute with an explicit manifest version.
func (e *Executor) ExecuteVersion(ctx context.Context, name, version string, params Params) Result {
	start := time.Now()
	meta := Metadata{RequestID: uuid.NewString()}

	finish := func(res Result) Result {
		res.Metadata.DurationMS = time.Since(start).Milliseconds()
		e.observer.ObserveInvoke(InvokeObservation{
			ToolName:   name,
			ToolType:   res.Metadata.ToolType,
			Primitive:  res.Metadata.PrimitiveType,
			Attempts:   res.Metadata.Attempts,
			DurationMS: res.Metadata.DurationMS,
			Success:    res.Success(),
			ErrorCode:  resultErrorCode(res),
		})
		return res
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return finish(failureResult(preDispatchError(ctx.Err()), meta))
	}
	defer func() { <-e.sem }()

	chain, err := e.resolver.Resolve(ctx, name, version)
	if err != nil {
		return finish(failureResult(err, meta))
	}

	terminal := chain.Terminal()
	meta.ToolType = chain[0].Type
	meta.PrimitiveType = terminal.Type.Primitive()

	primitive, ok := e.primitives[meta.PrimitiveType]
	if !ok {
		return finish(failureResult(
			newToolError(ErrorCodeConfiguration,
				fmt.Sprintf("tool: no primitive registered for kind %q", meta.PrimitiveType), false, nil), meta))
	}

	merged := MergeConfig(chain)
	dispatch := withInternal(params, InternalToolName, name)

	if err := validatePreconditions(chain, dispatch); err != nil {
		return finish(failureResult(err, meta))
	}

	outcome, err := primitive.Execute(ctx, merged, dispatch)
	meta.Attempts = outcome.Attempts
	if err != nil {
		return finish(failureResult(err, meta))
	}

	return finish(Result{
		Status:   StatusSuccess,
		Process:  outcome.Process,
		HTTP:     outcome.HTTP,
		Metadata: meta,
	})
}

// Close drains the shared connection pool. In-flight invocations complete
// under their own contexts.
func (e *Executor) Close() {
	e.pool.CloseIdle()
}

// validatePreconditions fails fast on missing required runtime inputs before
// any external resource is created. A script tool launched without its
// source path would otherwise block forever waiting on interactive input.
func validatePreconditions(chain Chain, params Params) error {
	for _, m := range chain {
		if m.Type != TypeScript {
			continue
		}
		if _, ok := params.SourcePath(); !ok {
			return withErrorDetails(
				newToolError(ErrorCodePrecondition,
					fmt.Sprintf("tool: script tool %q requires the %s internal parameter", m.Name, InternalSourcePath),
					false, nil),
				map[string]any{"tool": m.Name, "parameter": InternalSourcePath},
			)
		}
	}
	return nil
}

// preDispatchError classifies a context failure seen before a concurrency
// slot was acquired: an expired deadline is a timeout, anything else is a
// caller cancellation.
func preDispatchError(ctxErr error) *ToolError {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return newToolError(ErrorCodeTimeout, "tool: deadline expired before dispatch", false, ctxErr)
	}
	return newToolError(ErrorCodeCanceled, "tool: canceled before dispatch", false, ctxErr)
}

func withInternal(params Params, key string, value any) Params {
	internal := make(map[string]any, len(params.Internal)+1)
	for k, v := range params.Internal {
		internal[k] = v
	}
	internal[key] = value
	return Params{Internal: internal, User: params.User}
}

func resultErrorCode(res Result) string {
	if res.Err != nil {
		return res.Err.Code
	}
	return ""
}
