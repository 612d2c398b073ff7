// Package orgs exposes the caller's organization: its profile, current plan,
// owner-only rename and the organization's audit trail.
//
// Renaming is gated on ownership, not on a permission. Owners hold no
// implicit permissions; the owner check is a separate predicate evaluated
// against organizations.owner_id.
package orgs
