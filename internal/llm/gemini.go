package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/kdduha/genai-gateway/internal/config"
	"github.com/kdduha/genai-gateway/internal/payload"
	"google.golang.org/genai"
)

type Gemini struct {
	client *genai.Client
	opts   Options
}

func geminiClientConfig(cfg config.GeminiConfig) *genai.ClientConfig {
	cc := &genai.ClientConfig{}
	if cfg.IsVertexAI() {
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	} else {
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	}
	return cc
}

func NewGemini(ctx context.Context, cfg config.GeminiConfig, opts Options) (*Gemini, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newGemini(ctx, geminiClientConfig(cfg), opts)
}

func newGemini(ctx context.Context, cc *genai.ClientConfig, opts Options) (*Gemini, error) {
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client, opts: opts}, nil
}

func (g *Gemini) Generate(ctx context.Context, model, prompt string, data *InlineData) (string, error) {
	contents, err := buildGeminiContents(prompt, data)
	if err != nil {
		return "", err
	}

	var text string
	err = g.opts.invoke(ctx, "gemini generate "+model, func(ctx context.Context) error {
		resp, err := g.client.Models.GenerateContent(ctx, model, contents, nil)
		if err != nil {
			return err
		}
		text, err = extractGeminiText(resp)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return text, nil
}

func (g *Gemini) GenerateStream(ctx context.Context, model, prompt string, data *InlineData) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		contents, err := buildGeminiContents(prompt, data)
		if err != nil {
			yield("", err)
			return
		}

		if g.opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
			defer cancel()
		}

		for resp, err := range g.client.Models.GenerateContentStream(ctx, model, contents, nil) {
			if err != nil {
				yield("", fmt.Errorf("gemini stream: %w", err))
				return
			}
			if err := checkGeminiBlocked(resp); err != nil {
				yield("", err)
				return
			}
			delta := resp.Text()
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}

// buildGeminiContents returns a single user turn: the text part first, then
// the optional inline attachment.
func buildGeminiContents(prompt string, data *InlineData) ([]*genai.Content, error) {
	if prompt == "" && data == nil {
		return nil, ErrEmptyPrompt
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if data != nil {
		raw, err := payload.Decode(data.Data)
		if err != nil {
			return nil, err
		}
		parts = append(parts, genai.NewPartFromBytes(raw, data.MIMEType))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil
}

func checkGeminiBlocked(resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return &ResponseError{msg: "gemini returned an empty response"}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" &&
		resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return &ResponseError{msg: fmt.Sprintf("prompt blocked (reason: %s)", resp.PromptFeedback.BlockReason)}
	}
	if len(resp.Candidates) == 0 {
		return nil
	}
	// Streamed chunks carry no finish reason until the last one.
	switch reason := resp.Candidates[0].FinishReason; reason {
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonLanguage,
		genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		return &ResponseError{msg: fmt.Sprintf("generation blocked (reason: %s)", reason)}
	default:
		return nil
	}
}

// extractGeminiText joins the text parts of the first candidate.
func extractGeminiText(resp *genai.GenerateContentResponse) (string, error) {
	if err := checkGeminiBlocked(resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", &ResponseError{msg: "gemini returned no candidates"}
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
