// Package harness runs end-to-end scheduling scenarios against the real
// engine.
//
// Each scenario gets a fresh SQLite database, a scripted portal and a frozen
// clock. Steps drive the engine; the resulting update_log rows form the
// trace that assertions and golden snapshots inspect.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: stale_monthly_refresh
//	description: "A stale monthly series is fetched once"
//	workers: 1
//	series:
//	  - id: UNRATE
//	    frequency: Monthly
//	    checked_days_ago: 3
//	oracle:
//	  UNRATE:
//	    - observations: 5
//	    - error: ACCESS_DENIED
//	      message: blocked
//	peeks:
//	  UNRATE: "2024-03-01 8:00 AM CST"
//	steps:
//	  - op: pass
//	    expect: { updated: 1 }
//	  - op: advance
//	    days: 3
//	  - op: retry
//	    days: 1
//	assertions:
//	  - type: trace_contains
//	    series: UNRATE
//	    status: SUCCESS
//	  - type: trace_order
//	    series: UNRATE
//	    statuses: [ERROR, SUCCESS]
//	  - type: trace_count
//	    status: ERROR
//	    count: 1
//	  - type: final_state
//	    series: UNRATE
//	    expect: { frequency: Monthly, observations: "5" }
//
// # Steps
//
//   - pass: one update pass (min_days, limit)
//   - retry: a retry run over the trailing window (days, max_retries)
//   - fetch: force-fetch one series
//   - advance: move the clock forward by days
//
// # Deterministic Testing
//
// The clock only moves on advance steps and the run id is fixed, so a
// scenario with one worker writes byte-identical traces on every run. With
// more than one worker the row order depends on scheduling; such scenarios
// should stick to count and state assertions.
package harness
