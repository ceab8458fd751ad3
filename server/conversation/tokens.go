package conversation

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter sizes text for the token retention limit.
type TokenCounter interface {
	Count(text string) int
}

// EstimateCounter approximates tokens without a vocabulary: four ASCII
// characters or one non-ASCII character per token.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	weight := 0
	for _, r := range text {
		if r <= 127 {
			weight++
		} else {
			weight += 4
		}
	}
	return (weight + 3) / 4
}

// TiktokenCounter counts with the BPE vocabulary of a model.
// The first use of an encoding downloads its vocabulary unless
// TIKTOKEN_CACHE_DIR points at a populated cache.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the encoding for model, falling back to
// cl100k_base for models tiktoken does not know.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load tiktoken encoding: %w", err)
		}
	}
	return &TiktokenCounter{encoding: encoding}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// NewTokenCounter picks a counter by name: "tiktoken" or anything else for
// the estimate.
func NewTokenCounter(name, model string) (TokenCounter, error) {
	if name == "tiktoken" {
		return NewTiktokenCounter(model)
	}
	return EstimateCounter{}, nil
}
