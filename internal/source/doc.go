// Package source implements Source, the container that applies transforms
// exactly once and in order, and the request lifecycle shared by query,
// update, push and pull.
//
// Backend capabilities are discovered by interface assertion: a backend
// always applies transforms and may also retrieve, query, push, pull or
// reset. MemoryBackend implements all of them except push.
package source
