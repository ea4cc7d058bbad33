// Package connector links sources.
//
// A TransformConnector replays one source's transforms onto another,
// reconciling each against the target's current data. A RequestConnector
// lets a secondary source assist or rescue a primary source's requests.
package connector
