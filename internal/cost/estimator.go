// Package cost estimates the resource units (tokens) a request payload
// will consume, so the admission loop can charge the cost bucket before
// dispatch. Estimators are selected once at configuration time.
package cost

import (
	"fmt"
	"regexp"
)

// Encoder counts tokens in a piece of text. Production uses the
// tiktoken encoder; tests substitute fakes.
type Encoder interface {
	CountTokens(text string) int
}

// ZeroEstimator charges nothing per request. Useful when only the
// request-rate limit matters, and as the stub for providers without a
// token model.
type ZeroEstimator struct{}

// EstimateCost always returns 0.
func (ZeroEstimator) EstimateCost(payload map[string]any) (float64, error) {
	return 0, nil
}

var endpointPattern = regexp.MustCompile(`^https://[^/]+/v\d+/(.+)$`)

// EndpointFromURL extracts the API endpoint path from a request URL,
// e.g. "https://api.openai.com/v1/chat/completions" -> "chat/completions".
func EndpointFromURL(requestURL string) (string, error) {
	m := endpointPattern.FindStringSubmatch(requestURL)
	if m == nil {
		return "", fmt.Errorf("cannot derive API endpoint from URL %q", requestURL)
	}
	return m[1], nil
}
