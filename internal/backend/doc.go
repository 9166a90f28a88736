// Package backend is the host-facing facade over the tensor registry and
// the execution engine. Every operation is marshalled onto the host loop,
// so callers on any goroutine see a single consistent view of handles.
package backend
