package tool

import (
	"context"
	"fmt"
	"strings"
)

// MaxChainDepth bounds executor indirection to keep runaway references
// obvious. Realistic chains are two or three links deep.
const MaxChainDepth = 8

// Chain is the ordered path from a requested tool to the terminal primitive
// that performs the actual work. The first link is the caller-facing tool,
// the last link is always a terminal primitive kind.
type Chain []Manifest

// Terminal returns the chain's terminal manifest.
func (c Chain) Terminal() Manifest {
	if len(c) == 0 {
		return Manifest{}
	}
	return c[len(c)-1]
}

// Resolver walks executor references to build execution chains. Resolution
// holds no per-invocation state outside the call stack, so a single Resolver
// is safe for concurrent use.
type Resolver struct {
	source   Source
	maxDepth int
}

// NewResolver creates a resolver over the given manifest source.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source, maxDepth: MaxChainDepth}
}

// Resolve looks up the manifest for name and follows executor references
// until it reaches a terminal primitive. It fails with a RESOLUTION_FAILED
// error on unknown tools, cycles, malformed manifests, or depth overflow.
func (r *Resolver) Resolve(ctx context.Context, name, version string) (Chain, error) {
	if r == nil || r.source == nil {
		return nil, newToolError(ErrorCodeResolution, "tool: resolver has no manifest source", false, nil)
	}
	if strings.TrimSpace(name) == "" {
		return nil, newToolError(ErrorCodeResolution, "tool: tool name is empty", false, nil)
	}

	chain := make(Chain, 0, 4)
	visited := make(map[string]bool, 4)

	current, currentVersion := name, version
	for {
		if len(chain) >= r.maxDepth {
			return nil, withErrorDetails(
				newToolError(ErrorCodeResolution,
					fmt.Sprintf("tool: chain for %q exceeds maximum depth %d", name, r.maxDepth),
					false, nil),
				map[string]any{"max_depth": r.maxDepth},
			)
		}
		if visited[current] {
			return nil, withErrorDetails(
				newToolError(ErrorCodeResolution,
					fmt.Sprintf("tool: circular executor reference through %q", current),
					false, nil),
				map[string]any{"tool": current},
			)
		}
		visited[current] = true

		m, err := r.source.GetManifest(ctx, current, currentVersion)
		if err != nil {
			if _, ok := toolErrorFrom(err); ok {
				return nil, err
			}
			return nil, newToolError(ErrorCodeResolution, "tool: manifest lookup for "+current, false, err)
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		chain = append(chain, m)

		if m.Executor == "" {
			if !m.Type.Terminal() {
				return nil, newToolError(ErrorCodeResolution,
					fmt.Sprintf("tool: chain for %q ends at non-terminal type %q", name, m.Type), false, nil)
			}
			return chain, nil
		}
		// Executor references always select the latest registered version.
		current, currentVersion = m.Executor, ""
	}
}

// MergeConfig flattens a chain's per-link configs into one map.
//
// Contract: configs fold from the caller-facing tool toward the terminal
// primitive, and for a key present in multiple links the value from the link
// closer to the terminal primitive wins. The executor that actually runs owns
// operational keys such as command, url, and timeout; delegating links supply
// defaults. Deterministic for a given chain.
func MergeConfig(chain Chain) map[string]string {
	merged := make(map[string]string)
	for _, m := range chain {
		for key, value := range m.Config {
			merged[key] = value
		}
	}
	return merged
}
