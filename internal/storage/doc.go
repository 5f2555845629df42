// Package storage provides a minimal persistence layer for job run
// history.
//
// It currently supports:
//   - JSON Lines file backend (dependency-free)
//   - SQLite backend (behind the "sqlite" build tag)
package storage
