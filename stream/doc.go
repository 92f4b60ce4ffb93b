// Package stream provides the lazy, pull-based sequences that flow between
// query nodes.
//
// An Iterator is finite and forward-only. Nothing is produced until a
// consumer calls Next, and every Next checks the caller's context so that a
// consumer going away stops upstream work promptly.
//
// When one sequence feeds several consumers, Share wraps it in a buffer:
// the source is pulled once and every Fork replays the same items in the
// same order.
package stream
