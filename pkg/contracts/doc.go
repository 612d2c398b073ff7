// Package contracts stores an organization's contracts and the dashboard
// statistics computed from them.
//
// # Visibility
//
// Callers holding contract.view.all see every contract in their
// organization. Callers holding only contract.view.own see the contracts
// they created; other contracts are reported as not found.
package contracts
