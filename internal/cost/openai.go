package cost

import (
	"fmt"
	"strings"
)

// OpenAIEstimator infers token consumption from an OpenAI-style request
// body. Supported endpoints: chat completions, completions, embeddings.
// Completion requests are charged prompt tokens plus n * max_tokens for
// the anticipated response; embedding requests are charged input tokens.
type OpenAIEstimator struct {
	endpoint string
	enc      Encoder
}

// NewOpenAIEstimator derives the endpoint from the request URL and
// counts tokens with the given encoder.
func NewOpenAIEstimator(requestURL string, enc Encoder) (*OpenAIEstimator, error) {
	endpoint, err := EndpointFromURL(requestURL)
	if err != nil {
		return nil, err
	}
	return &OpenAIEstimator{endpoint: endpoint, enc: enc}, nil
}

// EstimateCost implements the batch.CostEstimator contract.
func (e *OpenAIEstimator) EstimateCost(payload map[string]any) (float64, error) {
	switch {
	case strings.HasSuffix(e.endpoint, "completions"):
		return e.completionTokens(payload)
	case e.endpoint == "embeddings":
		return e.embeddingTokens(payload)
	default:
		return 0, fmt.Errorf("cost estimation not implemented for endpoint %q", e.endpoint)
	}
}

func (e *OpenAIEstimator) completionTokens(payload map[string]any) (float64, error) {
	maxTokens := numberField(payload, "max_tokens", 15)
	n := numberField(payload, "n", 1)
	completion := n * maxTokens

	if strings.HasPrefix(e.endpoint, "chat/") {
		messages, ok := payload["messages"].([]any)
		if !ok {
			return 0, fmt.Errorf(`expecting a "messages" list in chat completion request`)
		}
		tokens := 0.0
		for _, raw := range messages {
			message, ok := raw.(map[string]any)
			if !ok {
				return 0, fmt.Errorf("expecting each chat message to be an object")
			}
			// Every message follows <im_start>{role/name}\n{content}<im_end>\n
			tokens += 4
			for key, value := range message {
				text, ok := value.(string)
				if !ok {
					return 0, fmt.Errorf("expecting string value for message field %q", key)
				}
				tokens += float64(e.enc.CountTokens(text))
				if key == "name" {
					// A name replaces the role, which is always 1 token.
					tokens--
				}
			}
		}
		// Every reply is primed with <im_start>assistant.
		tokens += 2
		return tokens + completion, nil
	}

	switch prompt := payload["prompt"].(type) {
	case string:
		return float64(e.enc.CountTokens(prompt)) + completion, nil
	case []any:
		tokens := 0.0
		for _, p := range prompt {
			text, ok := p.(string)
			if !ok {
				return 0, fmt.Errorf(`expecting string or list of strings for "prompt" field`)
			}
			tokens += float64(e.enc.CountTokens(text))
		}
		return tokens + completion*float64(len(prompt)), nil
	default:
		return 0, fmt.Errorf(`expecting string or list of strings for "prompt" field`)
	}
}

func (e *OpenAIEstimator) embeddingTokens(payload map[string]any) (float64, error) {
	switch input := payload["input"].(type) {
	case string:
		return float64(e.enc.CountTokens(input)), nil
	case []any:
		tokens := 0.0
		for _, i := range input {
			text, ok := i.(string)
			if !ok {
				return 0, fmt.Errorf(`expecting string or list of strings for "input" field`)
			}
			tokens += float64(e.enc.CountTokens(text))
		}
		return tokens, nil
	default:
		return 0, fmt.Errorf(`expecting string or list of strings for "input" field`)
	}
}

// numberField reads a numeric payload field, tolerating the float64
// shape JSON decoding produces, with a default when absent.
func numberField(payload map[string]any, key string, def float64) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}
