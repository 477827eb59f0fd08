// Package engine implements update scheduling for stored series.
//
// ARCHITECTURE:
//
// Update Pass:
//  1. SelectCandidates reads admitted-frequency series from the store
//  2. Partition splits them into contiguous, disjoint chunks
//  3. One worker per chunk opens its own oracle session and processes its
//     chunk strictly in order, pacing every request
//  4. Each worker returns a Summary; the pass sums them after all workers
//     have joined and appends one SYSTEM DAILY_UPDATE log entry
//
// Per-Series State Machine (Coordinator):
//
//	PENDING -> CHECKING -> SKIPPED
//	                    -> FETCHING -> UPSERTED
//	                                -> FAILED
//
// CHECKING applies series.NeedsCheck and, when enabled, compares the
// remote last-updated string with the stored one. FETCHING retries
// transient oracle failures within the page-load budget. A frequency that
// turns out not to be admitted ends in SKIPPED, not FAILED.
//
// Retry:
// FindRetryCandidates scans the log window for series with errors whose
// in-window RETRY count is still under the quota. Up to five candidates
// run on a single worker with a fixed delay; more are spread across the
// pool. Every attempt is logged with action RETRY.
//
// CRITICAL PATTERNS:
//   - Sessions are never shared between workers
//   - Every store write group covers exactly one series
//   - No per-series error stops a worker; only failing to build a session
//     abandons the rest of that worker's chunk
//   - The pass timeout is a soft budget, checked between passes
package engine
