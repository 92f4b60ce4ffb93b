// Package errors provides the structured error type shared by the query
// engine, the reducer dispatcher and the call guards.
//
// Every error raised across a package boundary is an *AppError carrying a
// machine-readable ErrorCode. Callers branch with Is/AsAppError instead of
// matching on strings.
package errors
