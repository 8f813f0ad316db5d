// Package llm wraps the hosted generative model behind a small Client
// interface. Every call sends one text part and at most one inline attachment.
package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/kdduha/genai-gateway/internal/config"
	"github.com/shouni/netarmor/retry"
)

var (
	ErrEmptyPrompt     = errors.New("prompt is empty")
	ErrUnknownProvider = errors.New("unknown model provider")
)

// InlineData is an attachment sent by value: base64 bytes plus MIME type.
type InlineData struct {
	Data     string
	MIMEType string
	Name     string
}

type Client interface {
	Generate(ctx context.Context, model, prompt string, data *InlineData) (string, error)
	GenerateStream(ctx context.Context, model, prompt string, data *InlineData) iter.Seq2[string, error]
}

// ResponseError reports a call that reached the provider but produced no
// usable text (blocked prompt, blocked candidate, empty candidates).
type ResponseError struct {
	msg string
}

func (e *ResponseError) Error() string { return e.msg }

// Options control call behavior shared by all backends. The zero value makes
// exactly one attempt with no deadline beyond the caller's context.
type Options struct {
	Timeout      time.Duration
	MaxRetries   uint64
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func OptionsFromConfig(cfg config.ModelConfig) Options {
	return Options{
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.RetryInitialDelay,
		MaxDelay:     cfg.RetryMaxDelay,
	}
}

func (o Options) retryConfig() retry.Config {
	return retry.Config{
		MaxRetries:      o.MaxRetries,
		InitialInterval: o.InitialDelay,
		MaxInterval:     o.MaxDelay,
	}
}

// invoke runs op under the configured timeout and, when MaxRetries > 0, the
// retry policy.
func (o Options) invoke(ctx context.Context, name string, op func(ctx context.Context) error) error {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	if o.MaxRetries == 0 {
		return op(ctx)
	}
	return retry.Do(ctx, o.retryConfig(), name, func() error { return op(ctx) }, ShouldRetry)
}

// NewFromConfig builds the backend selected by MODEL_PROVIDER.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Client, error) {
	opts := OptionsFromConfig(cfg.Model)
	switch cfg.Model.Provider {
	case config.ProviderGemini:
		return NewGemini(ctx, cfg.Gemini, opts)
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.OpenAI, opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Model.Provider)
	}
}
