package models

import (
	"fmt"
	"strings"
)

// GenerateTextRequest represents request for the text-only endpoints
type GenerateTextRequest struct {
	Prompt string `json:"prompt" validate:"required" example:"Write a haiku about the sea"`
}

func (r GenerateTextRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("prompt is empty")
	}
	return nil
}

// GenerateResponse carries the model output verbatim
type GenerateResponse struct {
	Result string `json:"result" example:"The sea breathes slow..."`
}

type ErrorResponse struct {
	Error string `json:"error" example:"prompt is empty"`
}

type StreamChunk struct {
	Delta string `json:"delta,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Err   error  `json:"-"`
}
