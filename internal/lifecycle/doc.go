// Package lifecycle owns every state change of a share.
//
// The engine creates shares, registers views, revokes, and runs the
// scheduled expiry and message-deletion tasks. Each transition is a single
// conditional update in the store; the engine never reads a status and then
// writes it back. A caller that loses a race sees a no-op (false or a
// Conflict outcome) rather than an error.
//
// STATE MACHINE:
//
//	active ──view (budget left)──> viewed ──view (budget used)──> destructed
//	active ──view (budget used)──> destructed
//	active ──expiry task / sweep──> expired
//	active|viewed ──revoke──> revoked
//	active|viewed ──control message gone──> expired (failure_reason set)
//
// CONSISTENCY BOUNDARY:
//
// Transport calls are not transactional with the store. A control message
// sent before a failed insert is deleted best-effort; a delivery that fails
// after a view was counted leaves the view counted. Both cases are logged
// at warn level with reconcile=true.
package lifecycle
