package processing

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/object-eraser/pkg/diag"
	"github.com/menta2k/object-eraser/pkg/types"
)

// Output formats. Both are lossless and carry no metadata.
const (
	FormatPNG  = "png"
	FormatWebP = "webp"
)

// Config controls source loading and encoding
type Config struct {
	// MaxSourceBytes caps how much is read from a source; 0 means 64 MiB
	MaxSourceBytes int64
	HTTPClient     *http.Client
	UserAgent      string
	Diag           diag.Sink
}

// Processor handles image loading, decoding, resizing and encoding
type Processor struct {
	config Config
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return NewProcessorWithConfig(Config{})
}

// NewProcessorWithConfig creates a processor with custom configuration
func NewProcessorWithConfig(config Config) *Processor {
	if config.MaxSourceBytes <= 0 {
		config.MaxSourceBytes = 64 << 20
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.UserAgent == "" {
		config.UserAgent = "Object-Eraser/1.0"
	}
	config.Diag = diag.OrNop(config.Diag)
	return &Processor{config: config}
}

// ReadSource returns the raw bytes of src and its MIME type, taken from the
// declaration, a data: URI, the HTTP response or content sniffing.
func (p *Processor) ReadSource(ctx context.Context, src types.Source) ([]byte, string, error) {
	var (
		data []byte
		mime = src.MIME
		err  error
	)
	switch {
	case src.Bytes != nil:
		data = src.Bytes
	case src.Path != "":
		data, err = p.readFile(src.Path)
	case src.URL != "":
		var served string
		data, served, err = p.readURL(ctx, src.URL)
		if mime == "" {
			mime = served
		}
	case src.Base64 != "":
		var declared string
		data, declared, err = decodeBase64Source(src.Base64)
		if mime == "" {
			mime = declared
		}
	default:
		return nil, "", types.Errorf(types.KindDecode, "read source", "empty source")
	}
	if err != nil {
		return nil, "", types.Wrap(types.KindDecode, "read source", err)
	}
	if len(data) == 0 {
		return nil, "", types.Errorf(types.KindDecode, "read source", "source is empty")
	}

	sniffed := http.DetectContentType(data)
	if mime == "" {
		mime = sniffed
	} else if !strings.EqualFold(mime, sniffed) && strings.HasPrefix(sniffed, "image/") {
		p.config.Diag.Debugf("declared MIME %s, content looks like %s", mime, sniffed)
	}
	return data, mime, nil
}

func (p *Processor) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, p.config.MaxSourceBytes))
}

// readURL downloads an image over http(s)
func (p *Processor) readURL(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.config.UserAgent)

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "application/octet-stream") {
		return nil, "", fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.config.MaxSourceBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}
	if strings.HasPrefix(contentType, "image/") {
		return data, contentType, nil
	}
	return data, "", nil
}

// decodeBase64Source accepts a raw base64 string or a data: URI
func decodeBase64Source(s string) ([]byte, string, error) {
	var mime string
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", fmt.Errorf("malformed data URI")
		}
		meta := s[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("data URI is not base64 encoded")
		}
		mime = strings.TrimSuffix(meta, ";base64")
		s = s[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64 image: %w", err)
	}
	return data, mime, nil
}

// DecodeConfig returns the dimensions and format name of encoded image data
func (p *Processor) DecodeConfig(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", types.Wrap(types.KindDecode, "decode config", err)
	}
	return cfg, format, nil
}

// Decode decodes image data as stored, without applying EXIF orientation
func (p *Processor) Decode(data []byte) (image.Image, error) {
	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(false)); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, types.Errorf(types.KindDecode, "decode", "unknown or unsupported image format")
}

// ResizeSeed resamples img to exactly the target size. Width and height are
// scaled independently.
func (p *Processor) ResizeSeed(img image.Image, target types.TargetSize) (*image.NRGBA, error) {
	if img == nil {
		return nil, types.Errorf(types.KindDecode, "resize seed", "no source image")
	}
	if target.IsZero() {
		return nil, types.Errorf(types.KindInvalidGeometry, "resize seed", "target size %v", target)
	}
	b := img.Bounds()
	if b.Dx() == target.Width && b.Dy() == target.Height {
		return imaging.Clone(img), nil
	}
	p.config.Diag.Debugf("resizing seed %dx%d -> %v", b.Dx(), b.Dy(), target)
	return imaging.Resize(img, target.Width, target.Height, imaging.Lanczos), nil
}

// Encode encodes img losslessly in the given format (png when empty)
func (p *Processor) Encode(img image.Image, format string) (types.RasterAsset, error) {
	if img == nil {
		return types.RasterAsset{}, types.Errorf(types.KindEncode, "encode", "no image")
	}
	var buf bytes.Buffer
	format = strings.ToLower(format)
	mime := "image/png"

	switch format {
	case FormatWebP:
		mime = "image/webp"
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
			return types.RasterAsset{}, types.Wrap(types.KindEncode, "encode webp", err)
		}
	case FormatPNG, "":
		format = FormatPNG
		if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
			return types.RasterAsset{}, types.Wrap(types.KindEncode, "encode png", err)
		}
	default:
		return types.RasterAsset{}, types.Errorf(types.KindEncode, "encode", "unsupported output format: %s", format)
	}

	b := img.Bounds()
	return types.RasterAsset{
		Data:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: format,
		MIME:   mime,
	}, nil
}

// SaveAsset writes an encoded asset to path
func (p *Processor) SaveAsset(asset types.RasterAsset, path string) error {
	if err := os.WriteFile(path, asset.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
