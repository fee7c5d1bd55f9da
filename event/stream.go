package event

import (
	"context"
	"sync"
)

// Drain receives the events of a stream until it is closed and returns them.
// An error received from one of errs, or the cancellation of ctx, stops
// Drain. The events received until then are returned together with the
// error.
func Drain(ctx context.Context, events <-chan Event, errs ...<-chan error) ([]Event, error) {
	out := make([]Event, 0, len(events))
	err := Walk(ctx, func(evt Event) error {
		out = append(out, evt)
		return nil
	}, events, errs...)
	return out, err
}

// Walk calls walkFn for every event of the given stream until the stream and
// all errs are closed. Walk stops at the first error received from errs or
// returned by walkFn, and when ctx is canceled.
func Walk(ctx context.Context, walkFn func(Event) error, events <-chan Event, errs ...<-chan error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := mergeErrors(ctx, errs)

	for events != nil || errc != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errc:
			if !ok {
				errc = nil
				continue
			}
			return err
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := walkFn(evt); err != nil {
				return err
			}
		}
	}

	return nil
}

// mergeErrors forwards the errors of errs into a single channel that is
// closed after all errs are closed or ctx is canceled. Nil channels are
// skipped; nil is returned when there is nothing to merge.
func mergeErrors(ctx context.Context, errs []<-chan error) <-chan error {
	var open []<-chan error
	for _, errc := range errs {
		if errc != nil {
			open = append(open, errc)
		}
	}
	if len(open) == 0 {
		return nil
	}

	out := make(chan error)
	var wg sync.WaitGroup
	wg.Add(len(open))
	for _, errc := range open {
		go func(errc <-chan error) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case err, ok := <-errc:
					if !ok {
						return
					}
					select {
					case <-ctx.Done():
						return
					case out <- err:
					}
				}
			}
		}(errc)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
