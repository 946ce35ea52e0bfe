// Package removal implements client.RemovalClient over HTTP.
//
// Each attempt runs under its own timeout. Only attempts that hit that
// local timeout are retried, with exponential backoff; cancellation of the
// caller's context stops immediately and is reported as types.ErrCancelled.
package removal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/menta2k/object-eraser/pkg/diag"
	"github.com/menta2k/object-eraser/pkg/types"
)

const op = "removal"

// maxDetail bounds how much of an error body is kept for diagnostics
const maxDetail = 2048

// Config controls the HTTP client
type Config struct {
	Endpoint    string
	APIKey      string
	Timeout     time.Duration // per attempt
	MaxAttempts int
	Backoff     time.Duration // delay before the first retry, doubled after
	HTTPClient  *http.Client
	Diag        diag.Sink
}

// Client posts image, mask and marked composite as multipart form data
type Client struct {
	config Config
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %s: %s", e.Status, e.Body)
}

// NewClient creates a client for the given endpoint
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("removal endpoint is required")
	}
	if !strings.HasPrefix(config.Endpoint, "http://") && !strings.HasPrefix(config.Endpoint, "https://") {
		return nil, fmt.Errorf("unsupported endpoint: %s", config.Endpoint)
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.Backoff <= 0 {
		config.Backoff = time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	config.Diag = diag.OrNop(config.Diag)
	return &Client{config: config}, nil
}

// Remove submits payload and returns the provider's result reference
func (c *Client) Remove(ctx context.Context, payload types.Payload, target types.TargetSize) (*types.RemovalResult, error) {
	body, contentType, err := buildForm(payload, target)
	if err != nil {
		return nil, types.Wrap(types.KindEncode, op, err)
	}

	backoff := c.config.Backoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, types.Wrap(types.KindCancelled, op, err)
		}

		res, timedOut, err := c.attempt(ctx, body, contentType)
		if err == nil {
			res.Attempts = attempt
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, types.Wrap(types.KindCancelled, op, ctx.Err())
		}
		if !timedOut || attempt >= c.config.MaxAttempts {
			return nil, types.Wrap(types.KindProvider, op, fmt.Errorf("attempt %d/%d: %w", attempt, c.config.MaxAttempts, err))
		}

		c.config.Diag.Warnf("removal attempt %d/%d timed out after %v, retrying in %v",
			attempt, c.config.MaxAttempts, c.config.Timeout, backoff)
		select {
		case <-ctx.Done():
			return nil, types.Wrap(types.KindCancelled, op, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// attempt performs one request. timedOut reports whether it failed because
// the per-attempt deadline expired while the caller's context was still live.
func (c *Client) attempt(ctx context.Context, body []byte, contentType string) (*types.RemovalResult, bool, error) {
	actx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, localTimeout(ctx, actx), fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, localTimeout(ctx, actx), fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := string(data)
		if len(detail) > maxDetail {
			detail = detail[:maxDetail]
		}
		c.config.Diag.Errorf("removal provider %s: status=%d body=%q", c.config.Endpoint, resp.StatusCode, detail)
		return nil, false, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: detail}
	}

	url, err := ParseResultURL(data)
	if err != nil {
		return nil, false, err
	}
	return &types.RemovalResult{URL: url, StatusCode: resp.StatusCode}, false, nil
}

func localTimeout(parent, attempt context.Context) bool {
	return parent.Err() == nil && errors.Is(attempt.Err(), context.DeadlineExceeded)
}

// buildForm encodes the payload as multipart/form-data
func buildForm(p types.Payload, target types.TargetSize) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	files := []struct {
		field string
		asset types.RasterAsset
	}{
		{"image", p.Image},
		{"mask", p.Mask},
		{"marked", p.Marked},
	}
	for _, f := range files {
		if len(f.asset.Data) == 0 {
			if f.field == "marked" {
				continue
			}
			return nil, "", fmt.Errorf("payload %s is empty", f.field)
		}
		if err := writeFile(w, f.field, f.asset); err != nil {
			return nil, "", err
		}
	}

	fields := [][2]string{
		{"width", strconv.Itoa(target.Width)},
		{"height", strconv.Itoa(target.Height)},
	}
	if p.ID != "" {
		fields = append(fields, [2]string{"request_id", p.ID})
	}
	if p.Hint != "" {
		fields = append(fields, [2]string{"prompt", p.Hint})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeFile(w *multipart.Writer, field string, asset types.RasterAsset) error {
	format := asset.Format
	if format == "" {
		format = "png"
	}
	mime := asset.MIME
	if mime == "" {
		mime = "image/" + format
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="%s.%s"`, field, field, format))
	h.Set("Content-Type", mime)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(asset.Data)
	return err
}
