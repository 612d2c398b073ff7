// Package database owns the relational storage plumbing shared by every
// ContractGuard service: the Postgres connection manager (primary plus
// optional read replicas), the versioned schema migrations, and the WithTx
// helper used for every multi-statement write.
//
// Services never open connections themselves. They receive a *sql.DB from the
// ConnectionManager and use WithTx whenever a write spans more than one
// statement, so that join-table replacements are all-or-nothing.
package database
