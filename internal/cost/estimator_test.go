package cost

import (
	"strings"
	"testing"
)

// wordEncoder counts whitespace-separated words as tokens. Keeps the
// arithmetic under test independent of any real encoding.
type wordEncoder struct{}

func (wordEncoder) CountTokens(text string) int {
	return len(strings.Fields(text))
}

func TestEndpointFromURL(t *testing.T) {
	cases := []struct {
		url      string
		endpoint string
		wantErr  bool
	}{
		{"https://api.openai.com/v1/chat/completions", "chat/completions", false},
		{"https://api.openai.com/v1/completions", "completions", false},
		{"https://api.openai.com/v1/embeddings", "embeddings", false},
		{"https://example.com/v2/chat/completions", "chat/completions", false},
		{"http://api.openai.com/v1/completions", "", true},
		{"https://api.openai.com/completions", "", true},
	}
	for _, tc := range cases {
		endpoint, err := EndpointFromURL(tc.url)
		if tc.wantErr {
			if err == nil {
				t.Errorf("EndpointFromURL(%q): expected error, got %q", tc.url, endpoint)
			}
			continue
		}
		if err != nil {
			t.Errorf("EndpointFromURL(%q): %v", tc.url, err)
			continue
		}
		if endpoint != tc.endpoint {
			t.Errorf("EndpointFromURL(%q) = %q, want %q", tc.url, endpoint, tc.endpoint)
		}
	}
}

func TestZeroEstimator(t *testing.T) {
	got, err := ZeroEstimator{}.EstimateCost(map[string]any{"prompt": "anything"})
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}
	if got != 0 {
		t.Errorf("EstimateCost = %v, want 0", got)
	}
}

func TestChatCompletionCost(t *testing.T) {
	est, err := NewOpenAIEstimator("https://api.openai.com/v1/chat/completions", wordEncoder{})
	if err != nil {
		t.Fatalf("NewOpenAIEstimator: %v", err)
	}

	payload := map[string]any{
		"model": "gpt-4o-mini",
		"messages": []any{
			map[string]any{"role": "user", "content": "count these four words"},
		},
		"max_tokens": float64(10),
	}
	// Message framing 4 + role 1 + content 4, reply priming 2, completion 1*10.
	got, err := est.EstimateCost(payload)
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}
	if want := 21.0; got != want {
		t.Errorf("EstimateCost = %v, want %v", got, want)
	}
}

func TestChatCompletionNameReplacesRole(t *testing.T) {
	est, err := NewOpenAIEstimator("https://api.openai.com/v1/chat/completions", wordEncoder{})
	if err != nil {
		t.Fatalf("NewOpenAIEstimator: %v", err)
	}

	payload := map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "name": "alice", "content": "hi"},
		},
		"max_tokens": float64(5),
		"n":          float64(2),
	}
	// Framing 4 + role 1 + name 1 - 1 + content 1, priming 2, completion 2*5.
	got, err := est.EstimateCost(payload)
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}
	if want := 18.0; got != want {
		t.Errorf("EstimateCost = %v, want %v", got, want)
	}
}

func TestCompletionPromptString(t *testing.T) {
	est, err := NewOpenAIEstimator("https://api.openai.com/v1/completions", wordEncoder{})
	if err != nil {
		t.Fatalf("NewOpenAIEstimator: %v", err)
	}

	payload := map[string]any{"prompt": "one two three"}
	// 3 prompt tokens + default completion 1*15.
	got, err := est.EstimateCost(payload)
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}
	if want := 18.0; got != want {
		t.Errorf("EstimateCost = %v, want %v", got, want)
	}
}

func TestCompletionPromptList(t *testing.T) {
	est, err := NewOpenAIEstimator("https://api.openai.com/v1/completions", wordEncoder{})
	if err != nil {
		t.Fatalf("NewOpenAIEstimator: %v", err)
	}

	payload := map[string]any{
		"prompt":     []any{"one two", "three"},
		"max_tokens": float64(4),
	}
	// 3 prompt tokens + 4 completion per prompt * 2 prompts.
	got, err := est.EstimateCost(payload)
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}
	if want := 11.0; got != want {
		t.Errorf("EstimateCost = %v, want %v", got, want)
	}
}

func TestCompletionPromptWrongType(t *testing.T) {
	est, err := NewOpenAIEstimator("https://api.openai.com/v1/completions", wordEncoder{})
	if err != nil {
		t.Fatalf("NewOpenAIEstimator: %v", err)
	}
	if _, err := est.EstimateCost(map[string]any{"prompt": float64(7)}); err == nil {
		t.Error("expected error for non-string prompt")
	}
}

func TestEmbeddingInputString(t *testing.T) {
	est, err := NewOpenAIEstimator("https://api.openai.com/v1/embeddings", wordEncoder{})
	if err != nil {
		t.Fatalf("NewOpenAIEstimator: %v", err)
	}
	got, err := est.EstimateCost(map[string]any{"input": "a b c d"})
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}
	if want := 4.0; got != want {
		t.Errorf("EstimateCost = %v, want %v", got, want)
	}
}

func TestEmbeddingInputList(t *testing.T) {
	est, err := NewOpenAIEstimator("https://api.openai.com/v1/embeddings", wordEncoder{})
	if err != nil {
		t.Fatalf("NewOpenAIEstimator: %v", err)
	}
	got, err := est.EstimateCost(map[string]any{"input": []any{"a b", "c"}})
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}
	if want := 3.0; got != want {
		t.Errorf("EstimateCost = %v, want %v", got, want)
	}
}

func TestUnsupportedEndpoint(t *testing.T) {
	est, err := NewOpenAIEstimator("https://api.openai.com/v1/moderations", wordEncoder{})
	if err != nil {
		t.Fatalf("NewOpenAIEstimator: %v", err)
	}
	if _, err := est.EstimateCost(map[string]any{"input": "x"}); err == nil {
		t.Error("expected error for unsupported endpoint")
	}
}
