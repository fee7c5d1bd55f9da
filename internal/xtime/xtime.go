// Package xtime provides the clock of event timestamps.
package xtime

import (
	"sync/atomic"
	"time"
)

var last atomic.Int64

// Now returns the current time. Successive calls within a process return
// strictly increasing times, even on machines whose clock has only
// microsecond precision or is adjusted backwards.
func Now() time.Time {
	for {
		now := time.Now()
		prev := last.Load()
		next := now.UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if last.CompareAndSwap(prev, next) {
			if next == now.UnixNano() {
				return now
			}
			return time.Unix(0, next)
		}
	}
}
