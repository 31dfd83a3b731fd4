// Package state keeps per-key conversation state in memory.
//
// Work on one key is serialized while different keys proceed in parallel.
// Idle entries are reclaimed by EvictIdle, which never removes an entry that
// is being updated.
package state
