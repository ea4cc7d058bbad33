// Package queue provides ActionQueue, a single-flight FIFO executor.
//
// At most one action runs at a time per queue and handles settle in
// submission order however long each action takes. A failed action fails
// only its own handle.
package queue
