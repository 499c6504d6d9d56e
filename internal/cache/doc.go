// Package cache implements the durable, content-addressed frame result
// store. Entry state lives in a SQLite database; payload bytes live in
// content-addressed files beside it. The claim operation is a single
// conditional write and is the only synchronization primitive the rest of
// the system needs: it is atomic at the storage layer, so independent
// runs sharing a cache directory cannot duplicate work.
package cache
