// Package audit records security-relevant changes: role edits, user role
// assignments, system role permission syncs, session invalidations, plan
// changes and logins.
//
// Services depend on the Logger interface. The process wires a MultiLogger
// that writes each event to the audit_events table and to the structured log.
// Audit failures are never allowed to fail the operation being audited.
package audit
