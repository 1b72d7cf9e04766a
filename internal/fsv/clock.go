package fsv

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so run event times are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts surrogate ID generation for snapshot records.
// IDs are only meaningful within a single run.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random (v4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
