// Package storage declares the combined persistence interface the binaries
// wire up. Concrete backends live in the subpackages: memory (tests and
// demo mode), sqlite (embedded single-node deploys) and pg (PostgreSQL).
package storage

import (
	"padisave.org/internal/circle"
	"padisave.org/internal/user"
)

// Store is the full persistence surface: circle state plus accounts.
type Store interface {
	circle.Store
	user.Store

	// Close releases any resources held by the store.
	Close() error
}
