// Package dag evaluates compiled query documents.
//
// The Executor orders the nodes an export needs with Kahn levels, runs each
// level concurrently and evaluates every node at most once per run. Call
// nodes invoke functions from a FunctionRegistry; select and keys nodes
// produce lazy streams that are only pulled when an export is materialized.
//
// A node that fails does not abort the run. Its result becomes a NodeError,
// dependents carry that error forward with their own name appended to the
// provenance, and sibling branches keep evaluating.
//
// Engine wraps an Executor with a query Library and implements the
// request/response contract used by transports.
package dag
