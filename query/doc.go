// Package query defines the declarative query document and the admission
// steps every document passes before it can run.
//
// A Document names a set of nodes (the execution DAG) and a set of exports
// that select which node results callers may fetch. Node arguments may nest
// further node specifications inline; Flatten hoists those into named
// top-level nodes so the executor only ever sees name references,
// parameter nodes and literals.
//
//	doc, err := query.Compile(raw) // Validate, Flatten, check exports
//
// Documents are usually loaded once at startup into a Library, from YAML or
// JSON files found by a FileLoader, and are read-only afterwards.
package query
