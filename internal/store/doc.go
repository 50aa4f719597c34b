// Package store is the local durable store of the sync engine.
//
// Records are kept as documents in named collections (see schema.Collections).
// A document has a primary key, a JSON body and a small set of index values;
// every call is transactional and durable before it returns.
//
// # Backends
//
// The structured backend is an embedded SQLite database (one table per
// collection, one indexed column per index) opened in WAL mode:
//
//	<data dir>/edebt.db
//
// The flat fallback backend is a single JSON blob read and rewritten whole:
//
//	<data dir>/fallback.json
//	{
//	  "version": 1,
//	  "dirty": false,
//	  "namespaces": {
//	    "customers": {"timestamp": 1767348000000, "data": [...]},
//	    ...
//	  }
//	}
//
// In normal operation the fallback file is a read snapshot refreshed from the
// structured store by Mirror after every successful download. When the
// structured backend cannot be opened the store degrades to the fallback
// file, which then becomes writable and is marked dirty. The next time the
// structured backend opens, Open imports the queued mutations and pending rows
// written in degraded mode and clears the flag.
//
// The fallback backend has no secondary indexes. GetByIndex falls back to a
// full scan with a filter on the stored index values.
package store
