// Package transform defines Transform, the identified and immutable batch
// of patch operations that sources exchange, along with its ancestry model,
// id generation and the operation Builder used by callback-style inputs.
package transform
