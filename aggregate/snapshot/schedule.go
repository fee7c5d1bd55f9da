package snapshot

import (
	"github.com/modernice/cqrs/aggregate"
)

// A Schedule determines if an aggregate is scheduled to be snapshotted.
type Schedule interface {
	// Test returns true if the given aggregate should be snapshotted after
	// being hydrated from version from to its current version.
	Test(a aggregate.Aggregate, from int) bool
}

type scheduleFunc func(aggregate.Aggregate, int) bool

// Every returns a Schedule that instructs to make snapshots of an aggregate
// every nth event of that aggregate.
func Every(n int) Schedule {
	return scheduleFunc(func(a aggregate.Aggregate, from int) bool {
		if n <= 0 {
			return false
		}
		current := aggregate.VersionOf(a)
		for v := from + 1; v <= current; v++ {
			if v%n == 0 {
				return true
			}
		}
		return false
	})
}

func (fn scheduleFunc) Test(a aggregate.Aggregate, from int) bool {
	return fn(a, from)
}
