// Package hint asks a vision model to name the object marked for removal.
// The answer travels with the removal request as a short text prompt.
package hint

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"unicode"

	"github.com/menta2k/object-eraser/pkg/client"
	"github.com/menta2k/object-eraser/pkg/types"
)

// DefaultPrompt asks for the marked object as JSON
const DefaultPrompt = `You are helping an object-removal tool.

The image contains one or more regions painted in a solid red-orange colour.
Name the object underneath the painted region.

Return JSON only:
{"object": "short noun phrase", "confidence": 0.0}

RULES
- "object" is 1 to 4 lowercase words naming a physical thing (e.g. "power line", "person", "trash can").
- Do not describe the paint itself, the background or the whole scene.
- If you cannot tell, return {"object": "none", "confidence": 0.0}
- JSON only. No markdown, no code fences, no comments.`

// MinConfidence below which an answer is discarded
const MinConfidence = 0.3

// MaxWords kept from a label
const MaxWords = 4

// Describer names the marked object
type Describer struct {
	client client.VisionClient
	model  string
	prompt string
}

// Answer is the model's reply
type Answer struct {
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

// NewDescriber creates a describer using the given vision model
func NewDescriber(client client.VisionClient, model string) *Describer {
	return &Describer{client: client, model: model, prompt: DefaultPrompt}
}

// WithPrompt returns a copy of d that sends prompt instead of DefaultPrompt
func (d *Describer) WithPrompt(prompt string) *Describer {
	cp := *d
	cp.prompt = prompt
	return &cp
}

// Describe returns a short name for the object painted over in marked,
// or "" when the model is unsure.
func (d *Describer) Describe(ctx context.Context, marked types.RasterAsset) (string, error) {
	if len(marked.Data) == 0 {
		return "", types.Errorf(types.KindEncode, "hint", "marked image is empty")
	}

	reply, err := d.client.DescribeImage(ctx, d.model, d.prompt, marked)
	if err != nil {
		if ctx.Err() != nil {
			return "", types.Wrap(types.KindCancelled, "hint", ctx.Err())
		}
		return "", types.Wrap(types.KindProvider, "hint", err)
	}

	answer := ParseAnswer(reply)
	if answer.Confidence < MinConfidence {
		return "", nil
	}
	return answer.Object, nil
}

// ParseAnswer reads the model reply. Replies that are not JSON are taken
// as a bare label with full confidence.
func ParseAnswer(raw string) Answer {
	clean := sanitizeModelJSON(raw)

	var a Answer
	if strings.HasPrefix(clean, "{") && json.Unmarshal([]byte(clean), &a) == nil {
		a.Object = NormalizeLabel(a.Object)
		if a.Object == "" {
			a.Confidence = 0
		}
		return a
	}

	// plain text: first line only
	line := strings.TrimSpace(raw)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if label := NormalizeLabel(line); label != "" {
		return Answer{Object: label, Confidence: 1}
	}
	return Answer{}
}

var noAnswer = map[string]bool{
	"none": true, "unknown": true, "unclear": true, "nothing": true, "n/a": true,
}

// NormalizeLabel lowercases, strips articles and punctuation and keeps at
// most MaxWords words. Non-answers become "".
func NormalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if noAnswer[label] {
		return ""
	}

	words := strings.FieldsFunc(label, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	if len(words) > 0 {
		switch words[0] {
		case "a", "an", "the":
			words = words[1:]
		}
	}
	if len(words) > MaxWords {
		words = words[:MaxWords]
	}

	out := strings.Join(words, " ")
	if noAnswer[out] {
		return ""
	}
	return out
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments and trailing commas
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
