package client

import (
	"context"

	"github.com/menta2k/object-eraser/pkg/types"
)

// RemovalClient submits a rendered annotation to an object-removal provider.
// Implementations must return types.ErrCancelled when ctx is cancelled by
// the caller, as opposed to timing out on their own.
type RemovalClient interface {
	Remove(ctx context.Context, payload types.Payload, target types.TargetSize) (*types.RemovalResult, error)
}

// VisionClient asks a vision model a question about a rendered raster and
// returns the reply text
type VisionClient interface {
	DescribeImage(ctx context.Context, model, prompt string, img types.RasterAsset) (string, error)
}
