// Package store provides a SQLite-backed journal of applied transforms.
//
// Every transform a source logs is written once, keyed by (source, id),
// together with its inverse and a content checksum. The journal can be
// read back in application order and replayed onto a document to rebuild
// a source after a restart.
//
// # Ordering
//
// Rows are ordered by the source's logical sequence number, never by wall
// time. Reads use ORDER BY seq ASC, id ASC COLLATE BINARY so replays are
// byte-for-byte reproducible.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Checksums are computed by value.Digest over RFC 8785 canonical JSON.
package store
