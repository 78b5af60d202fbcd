// Package engine runs typed queries and mutations against a store.
//
// An Engine is the explicit runtime context: it owns the backend handle,
// the SQL compiler for the backend's dialect and the result cache. Create
// one at start-up, share it between goroutines and Close it at shutdown.
//
// READ PATH:
//
//	Query -> compile -> fingerprint -> cache lookup
//	      -> (miss) ticket -> backend -> store if current
//
// WRITE PATH:
//
// Every Engine mutation runs in its own transaction. A Tx sends each
// statement to the backend immediately and records the tables it wrote.
// Commit fences those tables in the cache, commits, invalidates them and
// lifts the fence. Rollback leaves the cache alone: nothing it holds was
// ever changed.
//
// Queries issued through a Tx see its uncommitted writes and therefore
// never read or fill the cache.
//
// NULL SEMANTICS:
//
// Filters follow SQL three-valued logic. A comparison with NULL is
// neither true nor false and the row is dropped.
package engine
