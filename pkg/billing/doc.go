// Package billing manages subscription plans and organization subscriptions.
//
// # Plans and System Roles
//
// Each plan has a platform-scoped system role with the same name. An
// organization's members hold exactly one system role, the one mirroring the
// organization's current plan. Changing plans swaps that role for every
// member and increments their token versions in the same transaction, so
// sessions issued under the old plan stop working immediately.
//
// # Webhooks
//
// The payment provider posts events to /webhooks/billing with an
// X-Signature header holding the hex HMAC-SHA256 of the raw body:
//
//	{"id":"evt_123","type":"subscription.past_due","data":{"organizationId":7}}
//
// Events are recorded in billing_webhook_events and applied at most once.
//
// # Expiry
//
// A cron Scheduler periodically marks active subscriptions whose period has
// ended as expired.
package billing
