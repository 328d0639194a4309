// Package audit batches activity events and writes them asynchronously.
//
// The engine decides which events to emit; this package only buffers them and
// delivers them to a [Writer], typically the database activity table.
package audit
