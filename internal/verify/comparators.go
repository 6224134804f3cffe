package verify

import (
	"context"
	"fmt"

	"facekiosk/internal/faceclient"
)

// FaceServiceComparator delegates to the self-hosted face microservice.
type FaceServiceComparator struct {
	Client *faceclient.Client
}

func (c *FaceServiceComparator) Name() string { return "face-service" }

func (c *FaceServiceComparator) Compare(ctx context.Context, reference, candidate Image) (bool, error) {
	res, err := c.Client.Compare(ctx, reference.Data, candidate.Data)
	if err != nil {
		return false, &ComparisonError{Provider: c.Name(), Err: err}
	}
	return res.Match, nil
}

// StaticComparator always returns the same verdict. Used for local development.
type StaticComparator struct {
	Match bool
}

func (c StaticComparator) Name() string { return fmt.Sprintf("static(%v)", c.Match) }

func (c StaticComparator) Compare(ctx context.Context, reference, candidate Image) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.Match, nil
}
