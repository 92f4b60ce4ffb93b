// Package keys builds state-store keys from a reducer's identity, its scope
// and the identity dimensions of an event or entity.
//
// A key has the form
//
//	<kind>,<function>,<FIELD>:<value>,<FIELD>:<value>
//
// with the scope's fields in lexicographic order. Dimensions outside the
// scope are ignored, so the same logical entity always maps to the same key
// whichever extra dimensions the caller happens to carry.
package keys
