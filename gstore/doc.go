// Package gstore defines the versioned key-value state store
// that the ledger driver commits blocks into.
//
// A store is a sequence of immutable versions.
// Each call to [Store.Commit] applies a change set on top of the latest version,
// producing the next version and its root hash.
// A fresh store reports [UninitializedVersion]; the first commit produces version 0.
//
// Implementations live in subpackages and in the gsqlite package.
// They all compute the root hash with [HashEntries],
// so equal contents produce byte-identical hashes regardless of the backend.
package gstore
