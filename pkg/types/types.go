package types

import "fmt"

// Constraints describes the output sizes a removal provider accepts
type Constraints struct {
	MinSide int `json:"min_side"`
	MaxSide int `json:"max_side"`
	Step    int `json:"side_step"`
}

// TargetSize is a provider-safe output size and the per-axis scale from the source
type TargetSize struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	ScaleX float64 `json:"scale_x"`
	ScaleY float64 `json:"scale_y"`
}

// IsZero reports whether the target size is missing or degenerate
func (t TargetSize) IsZero() bool {
	return t.Width <= 0 || t.Height <= 0
}

func (t TargetSize) String() string {
	return fmt.Sprintf("%dx%d", t.Width, t.Height)
}

// RasterAsset is an encoded image and its pixel dimensions
type RasterAsset struct {
	Data   []byte
	Width  int
	Height int
	Format string
	MIME   string
}

// Source references input image bytes. Exactly one of Path, URL, Base64 or
// Bytes is expected to be set.
type Source struct {
	Path   string
	URL    string
	Base64 string // raw base64 or a data: URI
	Bytes  []byte
	MIME   string // optional declared MIME type
}

// Payload is what gets handed to a removal provider
type Payload struct {
	ID     string
	Image  RasterAsset
	Mask   RasterAsset
	Marked RasterAsset
	Hint   string
}

// RemovalResult references the provider's output
type RemovalResult struct {
	URL        string `json:"url"`
	Attempts   int    `json:"attempts"`
	StatusCode int    `json:"status_code"`
}
