// Package tool implements chained tool execution: a named, versioned tool is
// resolved through a chain of delegating manifests to one of two terminal
// primitives, a subprocess spawn or an outbound HTTP request.
//
// The package is intentionally split by concern:
//   - manifest: chain-link schemas and the flattened config contract
//   - chain: resolution and config merging
//   - primitives: the subprocess and HTTP terminal executors
//   - executor: the orchestrating façade returning normalized results
//   - registry/stores: manifest sources for CLI (file) and daemon (SQLite)
//   - health: endpoint probing and background scheduling
//
// Every invocation is a self-contained request/response unit; the only
// long-lived shared resource is the HTTP client pool owned by the Executor.
package tool
