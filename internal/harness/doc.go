// Package harness runs scripted conformance scenarios against the query
// engine.
//
// A scenario declares its tables in CUE, seeds rows, then runs a flow of
// inserts, updates, deletes and queries against a fresh in-memory
// SQLite database. Each step may state what it expects: an error class,
// an affected-row count, exact result rows, or whether a query was served
// from the result cache. Assertions then check the trace, the cache
// counters and the final table contents.
//
// # Scenario Format
//
//	name: adults_query
//	description: "Filter and order people by age"
//	schema:
//	  - ../schema/people.cue
//	cache_capacity: 8
//	setup:
//	  - table: people
//	    rows:
//	      - { name: Link, age: 125, pet: horse }
//	flow:
//	  - query: people
//	    where: "age >= 18"
//	    order: [-age]
//	    columns: [name]
//	    expect:
//	      rows: [[Link]]
//	  - insert: people
//	    rows:
//	      - { name: Link, age: 3 }
//	    expect:
//	      error: constraint:primary_key
//	assertions:
//	  - type: row_count
//	    table: people
//	    count: 1
//	  - type: cache
//	    misses: 1
//
// # Error Classes
//
// Expected errors are written as "category:detail" in lower case, for
// example constraint:unique, schema:bad_row or scope:unknown_column.
// Filter syntax errors are "filter" and anything else is "error". A bare
// category matches every detail in it.
//
// # Assertion Types
//
//   - row_count: the number of rows in a table matching an optional filter
//   - final_state: every matching row carries the expected column values
//   - trace_count: the number of flow steps with a given op or error class
//   - cache: the result cache hit and miss counters at the end of the flow
//
// # Golden Files
//
// RunWithGolden stores the trace and final state of a run under
// testdata/golden/{name}.golden and compares later runs against it.
package harness
