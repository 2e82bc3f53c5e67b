package validation

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tokenizer used by the gpt-4.1 and gpt-4o families.
const DefaultEncoding = "o200k_base"

// Tokenizer defines the interface for token counting
type Tokenizer interface {
	CountTokens(text string) int
}

// tiktokenWrapper wraps tiktoken to implement our Tokenizer interface
type tiktokenWrapper struct {
	*tiktoken.Tiktoken
}

func (t *tiktokenWrapper) CountTokens(text string) int {
	return len(t.Encode(text, nil, nil))
}

// TokenCounter measures questions against the configured token budget.
type TokenCounter struct {
	encoding Tokenizer
}

// NewTokenCounter creates a token counter for the named tiktoken encoding.
// An empty name selects DefaultEncoding.
func NewTokenCounter(encoding string) (*TokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encoding, err)
	}
	return &TokenCounter{encoding: &tiktokenWrapper{enc}}, nil
}

// NewTokenCounterWithTokenizer creates a token counter backed by t.
func NewTokenCounterWithTokenizer(t Tokenizer) *TokenCounter {
	return &TokenCounter{encoding: t}
}

// CountTokens returns the number of tokens in text.
func (tc *TokenCounter) CountTokens(text string) int {
	return tc.encoding.CountTokens(text)
}

// ValidateTokens checks that text fits in maxTokens. A non-positive limit
// disables the check.
func (tc *TokenCounter) ValidateTokens(text string, maxTokens int) error {
	if maxTokens <= 0 {
		return nil
	}
	if n := tc.CountTokens(text); n > maxTokens {
		return fmt.Errorf("question has %d tokens, limit is %d", n, maxTokens)
	}
	return nil
}
