// Package reducer maintains per-entity activity state.
//
// A Reducer folds events of one context into a private internal state and
// an external state that queries read. State lives in a statestore.Store
// under keys built from the reducer's scope and the event's dimensions.
// The Dispatcher serializes updates per key, so concurrent events for the
// same student never lose increments, while events for different keys
// proceed in parallel.
//
// External state changes are published to a Hub, where subscribers match
// state keys with glob patterns.
package reducer
