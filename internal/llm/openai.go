package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/kdduha/genai-gateway/internal/config"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client openai.Client
	opts   Options
}

func NewOpenAI(cfg config.OpenAIConfig, opts Options, extra ...option.RequestOption) *OpenAI {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	}
	return &OpenAI{
		client: openai.NewClient(append(reqOpts, extra...)...),
		opts:   opts,
	}
}

func (o *OpenAI) Generate(ctx context.Context, model, prompt string, data *InlineData) (string, error) {
	params, err := buildOpenAIParams(model, prompt, data)
	if err != nil {
		return "", err
	}

	var text string
	err = o.opts.invoke(ctx, "openai generate "+model, func(ctx context.Context) error {
		resp, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return &ResponseError{msg: "openai returned no choices"}
		}
		text = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI client error: %w", err)
	}
	return text, nil
}

func (o *OpenAI) GenerateStream(ctx context.Context, model, prompt string, data *InlineData) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		params, err := buildOpenAIParams(model, prompt, data)
		if err != nil {
			yield("", err)
			return
		}

		if o.opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
			defer cancel()
		}

		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("OpenAI stream error: %w", err))
		}
	}
}

func buildOpenAIParams(model, prompt string, data *InlineData) (openai.ChatCompletionNewParams, error) {
	if prompt == "" && data == nil {
		return openai.ChatCompletionNewParams{}, ErrEmptyPrompt
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
	}
	if data != nil {
		parts = append(parts, openAIAttachmentPart(data))
	}

	return openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(parts),
		},
	}, nil
}

// openAIAttachmentPart maps an inline attachment to the closest content part
// kind the chat completions API accepts.
func openAIAttachmentPart(data *InlineData) openai.ChatCompletionContentPartUnionParam {
	dataURL := fmt.Sprintf("data:%s;base64,%s", data.MIMEType, data.Data)

	switch {
	case strings.HasPrefix(data.MIMEType, "image/"):
		return openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL,
		})
	case audioFormat(data.MIMEType) != "":
		return openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
			Data:   data.Data,
			Format: audioFormat(data.MIMEType),
		})
	default:
		name := data.Name
		if name == "" {
			name = "attachment"
		}
		return openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
			FileData: openai.String(dataURL),
			Filename: openai.String(name),
		})
	}
}

func audioFormat(mimeType string) string {
	switch mimeType {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	default:
		return ""
	}
}
