// Package verify decides whether a captured frame shows the same person as a worker's
// reference photo. The decision itself is delegated to a Comparator.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"facekiosk/internal/errs"
)

// ErrReferenceUnavailable is returned when the worker has no reference photo.
var ErrReferenceUnavailable = errors.New("no reference photo found for this worker, please contact an admin")

// Image is an encoded picture ready to send to a comparator.
type Image struct {
	Data     []byte
	MIMEType string
}

// Result is the comparison verdict.
type Result struct {
	Match bool `json:"match"`
}

// Comparator compares a reference image against a candidate.
type Comparator interface {
	Name() string
	Compare(ctx context.Context, reference, candidate Image) (bool, error)
}

// Fetcher retrieves a reference image by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Image, error)
}

// FetchError reports that the reference image could not be retrieved.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("failed to fetch reference photo via proxy: %d %s", e.Status, statusText(e.Status))
	}
	return fmt.Sprintf("failed to fetch reference photo: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ComparisonError reports that the comparison service failed or answered with something
// that is not a verdict.
type ComparisonError struct {
	Provider string
	Err      error
}

func (e *ComparisonError) Error() string {
	return fmt.Sprintf("comparison service %s failed: %v", e.Provider, e.Err)
}

func (e *ComparisonError) Unwrap() error { return e.Err }

// Gateway fetches the reference, normalizes the capture and asks the comparator.
type Gateway struct {
	fetcher    Fetcher
	comparator Comparator
	maxEdge    int
	timeout    time.Duration
}

// NewGateway builds a gateway. maxEdge bounds the longest image side sent to the
// comparator; timeout bounds a single comparison call.
func NewGateway(fetcher Fetcher, comparator Comparator, maxEdge int, timeout time.Duration) *Gateway {
	if maxEdge <= 0 {
		maxEdge = 1024
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{fetcher: fetcher, comparator: comparator, maxEdge: maxEdge, timeout: timeout}
}

// Verify compares captured against the image at referenceURL. Nothing is persisted.
func (g *Gateway) Verify(ctx context.Context, referenceURL string, captured []byte) (Result, error) {
	if referenceURL == "" {
		return Result{}, ErrReferenceUnavailable
	}
	if len(captured) == 0 {
		return Result{}, errs.Required("frame")
	}
	candidate, err := NormalizeImage(captured, g.maxEdge)
	if err != nil {
		return Result{}, &errs.ValidationError{Field: "frame", Message: err.Error()}
	}

	ref, err := g.fetcher.Fetch(ctx, referenceURL)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{URL: referenceURL, Err: err}
		}
		return Result{}, err
	}
	refData, err := NormalizeImage(ref.Data, g.maxEdge)
	if err != nil {
		return Result{}, &FetchError{URL: referenceURL, Err: fmt.Errorf("reference is not a usable image: %w", err)}
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	match, err := g.comparator.Compare(cctx,
		Image{Data: refData, MIMEType: "image/jpeg"},
		Image{Data: candidate, MIMEType: "image/jpeg"},
	)
	if err != nil {
		var ce *ComparisonError
		if !errors.As(err, &ce) {
			err = &ComparisonError{Provider: g.comparator.Name(), Err: err}
		}
		return Result{}, err
	}
	log.Printf("verify: %s answered match=%v in %s", g.comparator.Name(), match, time.Since(start).Round(time.Millisecond))
	return Result{Match: match}, nil
}

// Comparator returns the configured comparator.
func (g *Gateway) Comparator() Comparator { return g.comparator }
