// Package value provides the JSON-like value tree held by patch documents.
//
// This package contains type definitions and pure helpers only. It imports
// nothing internal, so every other package can depend on it.
//
// Key design constraints:
//   - A nil Value means "absent"; Null is a present JSON null
//   - Integral numbers are Int (int64), others Float
//   - Clone is deep: stored and inverse values never alias caller data
//   - Canonical JSON (RFC 8785 ordering, NFC strings) backs digests
package value
