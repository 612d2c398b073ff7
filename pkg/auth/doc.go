// Package auth provides ContractGuard user accounts, password login and
// signed session tokens.
//
// # Sessions
//
// A session token is an HS256 JWT carrying the user's effective permission
// set and the user's tokenVersion at issue time:
//
//	{"sub":"42","org":7,"owner":true,"super":false,"perms":["contract.view.all"],"ver":3,...}
//
// Permission changes never edit outstanding tokens. Instead the stored
// token_version is incremented, and the session middleware rejects any token
// whose embedded version no longer matches.
//
// # Registration and Login
//
// Register creates an organization, its owner, and the organization's first
// subscription in one transaction. Login verifies a bcrypt password hash and
// issues a token from the PermissionResolver's view of the user.
package auth
