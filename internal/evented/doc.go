// Package evented provides typed event notification for sources and
// connectors.
//
// A Notifier is a copy-on-write listener list. Evented keys notifiers by
// Kind and adds two asynchronous-style disciplines on top of plain
// broadcast: Resolve (first responder wins, NO_RESOLUTION when nobody
// answers) and Settle (every listener runs, errors are logged).
package evented
