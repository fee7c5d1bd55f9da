package xtime_test

import (
	"sync"
	"testing"
	"time"

	"github.com/modernice/cqrs/internal/xtime"
)

func TestNow_increasing(t *testing.T) {
	prev := xtime.Now()
	for i := 0; i < 10000; i++ {
		now := xtime.Now()
		if !now.After(prev) {
			t.Fatalf("Now should return increasing times; got %v after %v", now, prev)
		}
		prev = now
	}
}

func TestNow_concurrent(t *testing.T) {
	const n = 8
	const perWorker = 1000

	results := make(chan int64, n*perWorker)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				results <- xtime.Now().UnixNano()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for ns := range results {
		if seen[ns] {
			t.Fatalf("Now returned the same time twice: %v", time.Unix(0, ns))
		}
		seen[ns] = true
	}
}
