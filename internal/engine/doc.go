// Package engine provides the asynchronous execution engine: a fixed-size
// worker pool that runs model sessions off the host loop, and the callback
// bridge that marshals each finished job back into the host loop exactly
// once. Jobs move through a linear state machine
// (created → queued → running → completed → delivered → disposed) with a
// single owner at every step, so job fields never need locking.
package engine
