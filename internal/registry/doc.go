// Package registry persists the receivers discovery has seen.
//
// A Device is keyed by its IPv4 address: one record per address no matter
// how many times, or by which strategy, it is sighted. Records are never
// deleted; the staleness sweep only clears Active.
//
// Two Repository implementations are provided. SQLiteRepository is used by
// the daemon; MemoryRepository serves tests and
// "avrctl -ephemeral" runs.
//
// Repositories do not merge. The discovery engine reads, merges and writes
// under its own lock; the repository only stores what it is given.
package registry
