package removal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Response is the union of result shapes seen from removal providers
type Response struct {
	ResultURL string          `json:"result_url"`
	OutputURL string          `json:"output_url"`
	ImageURL  string          `json:"image_url"`
	URL       string          `json:"url"`
	Output    json.RawMessage `json:"output"`
	Data      []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// ParseResultURL extracts the result URL from a provider response.
// Fields are tried in this order:
//
//  1. result_url
//  2. output_url
//  3. image_url
//  4. url
//  5. output, as a string or the first string of an array
//  6. data[0].url
func ParseResultURL(body []byte) (string, error) {
	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	candidates := []string{r.ResultURL, r.OutputURL, r.ImageURL, r.URL, r.output()}
	if len(r.Data) > 0 {
		candidates = append(candidates, r.Data[0].URL)
	}
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c, nil
		}
	}
	return "", fmt.Errorf("no result URL in response")
}

func (r Response) output() string {
	if len(r.Output) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Output, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(r.Output, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}
