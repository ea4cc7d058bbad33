// Package harness runs scripted scenarios against a sync topology.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: mirror_planets
//	description: "Writes to memory reach backup"
//	topology: topology.cue
//	steps:
//	  - source: memory
//	    action: transform
//	    ops:
//	      - { op: add, path: /planets/earth, value: { name: Earth } }
//	  - source: memory
//	    action: query
//	    paths: [/planets/earth/name]
//	    expect:
//	      value: Earth
//	  - source: memory
//	    action: transform
//	    ops:
//	      - { op: remove, path: /planets/mars }
//	    expect:
//	      error: PATH_NOT_FOUND
//	assertions:
//	  - type: document
//	    source: backup
//	    path: /planets/earth/name
//	    expect: Earth
//	  - type: log_count
//	    source: backup
//	    count: 1
//
// Step actions are transform, update, push, pull, query and reset.
// Assertion types are document, absent, log_contains, log_count and
// journal_count.
//
// # Deterministic Traces
//
// Transform ids are generated sequentially ("t-1", "t-2", ...) and trace
// events are numbered by a logical clock. After every step the topology
// is flushed and the transforms each source logged are appended to the
// trace in source declaration order, so the same scenario always yields
// byte-identical canonical JSON for golden comparison.
package harness
