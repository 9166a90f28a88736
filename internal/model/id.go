package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string for use as a run identifier. Resource
// handles are not ULIDs; they come from the registry's monotonic counter.
func NewID() string {
	return ulid.Make().String()
}
