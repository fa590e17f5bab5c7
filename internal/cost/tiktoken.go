package cost

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenEncoder counts tokens with a named tiktoken encoding
// (e.g. "cl100k_base").
type TiktokenEncoder struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEncoder loads the named encoding.
func NewTiktokenEncoder(name string) (*TiktokenEncoder, error) {
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("loading token encoding %q: %w", name, err)
	}
	return &TiktokenEncoder{enc: enc}, nil
}

// CountTokens returns the number of tokens in text.
func (t *TiktokenEncoder) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
