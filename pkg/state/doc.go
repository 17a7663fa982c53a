// Package state persists committed selection paths so a form can reopen with
// the choices it was saved with.
//
// Store[T] loads and saves one snapshot for one Ref. Selections captures a
// resolver's committed path into a Snapshot, restores it through Preload, and
// guards concurrent edits with ETags.
//
// Deterministic keys:
//
//	Ref.Identifier() yields `system/<form>` or `<scope>/<id>/<form>` for the
//	tenant, org, team and user scopes.
package state
