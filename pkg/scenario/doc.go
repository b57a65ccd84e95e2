// Package scenario defines persistence-facing contracts for storing named
// what-if revision layers and replaying them against a parameter engine.
//
// Responsibilities:
//   - Store only loads/saves a single snapshot for a single Ref.
//   - Runner loads snapshots for multiple refs, orders them by priority, and
//     builds a fresh engine with the merged revision applied.
//   - The core params package remains persistence-agnostic; all persistence
//     logic stays behind Store implementations supplied by consumers.
//
// Data flow:
//
//	Store -> Runner -> params.New(...).Initialize(...).Update(merged)
//
// Concurrency control:
//
//	Meta.ETag implements optimistic locking: Mutate refuses to save over a
//	snapshot whose stored ETag differs from the one the caller observed.
//
// Deterministic keys:
//
//	Ref.Identifier() provides a canonical storage key ("domain/name") so
//	adapters over real databases can derive stable primary keys.
package scenario
