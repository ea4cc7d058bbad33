// Package topology describes a set of sources and the connectors between
// them in CUE, and builds the live graph.
//
// A topology file declares sources and connectors by name:
//
//	source: memory: {kind: "memory", seed: {planets: {}}}
//	source: backup: {kind: "memory"}
//
//	connector: "memory-to-backup": {
//		type:     "transform"
//		from:     "memory"
//		to:       "backup"
//		blocking: true
//	}
//
// Compile checks the file against the embedded schema and extracts a
// Config. Validate reports reference errors, and AnalyzeCycles reports
// connector loops that would recurse forever or can deadlock. Build
// instantiates the sources and activates the connectors.
package topology
