package workflow

import (
	"context"
	"log"
	"time"

	"facekiosk/internal/attendance"
)

// Locator reports the device position. Failures are never fatal to a capture.
type Locator interface {
	Locate(ctx context.Context) (*attendance.Location, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (*attendance.Location, error)

func (f LocatorFunc) Locate(ctx context.Context) (*attendance.Location, error) { return f(ctx) }

// Fixed returns a Locator for a position already known to the caller, such as one sent by
// the kiosk browser. A nil loc yields no location.
func Fixed(loc *attendance.Location) Locator {
	return LocatorFunc(func(context.Context) (*attendance.Location, error) { return loc, nil })
}

// locate races locator against timeout. Errors, denials and timeouts all yield nil.
func locate(ctx context.Context, locator Locator, timeout time.Duration) *attendance.Location {
	if locator == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan *attendance.Location, 1)
	go func() {
		loc, err := locator.Locate(ctx)
		if err != nil {
			log.Printf("warning: location unavailable: %v", err)
			loc = nil
		}
		ch <- loc
	}()

	select {
	case loc := <-ch:
		return loc
	case <-ctx.Done():
		log.Printf("warning: location timed out after %s", timeout)
		return nil
	}
}
