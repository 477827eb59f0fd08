// Package store provides SQLite-backed durable storage for series
// metadata, observations and the operation log.
//
// # Tables
//
//   - series_metadata: one row per series, upserted on every successful fetch
//   - series_values: (series_id, date) keyed observations, upserted per point
//   - update_log: append-only record of every fetch attempt and pass summary
//
// # Write Groups
//
// Each series write group is one transaction: SaveSeries covers the
// metadata upsert, every observation row and the SUCCESS log entry;
// RecordFailure covers the last_checked bump and the ERROR log entry.
// Workers may interleave these transactions freely because no transaction
// ever touches two series.
//
// # Timestamps
//
// Timestamps are written with series.FormatTime so that window filters can
// compare them as strings. Rows are never deleted.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: observations require their metadata row
package store
