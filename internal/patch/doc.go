// Package patch implements the JSON-Patch style document engine.
//
// A Document holds one value tree and supports add, remove, replace, move,
// copy and test. Every mutation can return its inverse: a list of
// operations that, applied in order, restores the tree exactly. Inverse and
// stored values are deep copies, so replaying an inverse never observes
// later edits through shared storage.
//
// Paths are segment lists. "-" addresses one past the end of an array.
// The Operation type is a sealed sum with one struct per operation kind.
package patch
