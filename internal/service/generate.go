package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kdduha/genai-gateway/internal/config"
	"github.com/kdduha/genai-gateway/internal/llm"
	"github.com/kdduha/genai-gateway/internal/metrics"
	"github.com/kdduha/genai-gateway/internal/models"
)

type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
}

// GenerateService sequences a single model invocation: cache lookup, the
// adapter call, and cache store.
type GenerateService struct {
	logger    *log.Logger
	client    llm.Client
	modelName string
	cache     Cache
}

func NewGenerateService(logger *log.Logger, client llm.Client, cfg config.ModelConfig) *GenerateService {
	return &GenerateService{
		logger:    logger,
		client:    client,
		modelName: cfg.Name,
	}
}

func (s *GenerateService) SetCacheClient(cache Cache) {
	s.cache = cache
}

func (s *GenerateService) Generate(ctx context.Context, prompt string, data *llm.InlineData) (*models.GenerateResponse, error) {
	key := getCacheKey(s.modelName, prompt, data)
	if cached, ok := s.lookup(ctx, key); ok {
		return &models.GenerateResponse{Result: cached}, nil
	}

	kind := attachmentKind(data)
	start := time.Now()
	text, err := s.client.Generate(ctx, s.modelName, prompt, data)
	observe(kind, start, err)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, text)
	return &models.GenerateResponse{Result: text}, nil
}

func (s *GenerateService) GenerateStream(ctx context.Context, prompt string) (<-chan models.StreamChunk, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, llm.ErrEmptyPrompt
	}

	ch := make(chan models.StreamChunk, 1)

	key := getCacheKey(s.modelName, prompt, nil)
	if cached, ok := s.lookup(ctx, key); ok {
		ch <- models.StreamChunk{Delta: cached, Done: true}
		close(ch)
		return ch, nil
	}

	go func() {
		defer close(ch)

		sendOrStop := func(msg models.StreamChunk) bool {
			select {
			case ch <- msg:
				return true
			case <-ctx.Done():
				return false
			}
		}

		start := time.Now()
		var builder strings.Builder
		for delta, err := range s.client.GenerateStream(ctx, s.modelName, prompt, nil) {
			if err != nil {
				observe(metrics.KindText, start, err)
				sendOrStop(models.StreamChunk{Err: err})
				return
			}
			builder.WriteString(delta)
			if !sendOrStop(models.StreamChunk{Delta: delta}) {
				observe(metrics.KindText, start, ctx.Err())
				return
			}
		}
		observe(metrics.KindText, start, nil)

		s.store(ctx, key, builder.String())
		sendOrStop(models.StreamChunk{Done: true})
	}()

	return ch, nil
}

func (s *GenerateService) lookup(ctx context.Context, key string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	cached, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Printf("cache get error: %v\n", err)
		return "", false
	}
	if found {
		s.logger.Println("served from cache")
	}
	return cached, found
}

func (s *GenerateService) store(ctx context.Context, key, value string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.logger.Printf("failed to set cache: %v\n", err)
	}
}

func observe(kind string, start time.Time, err error) {
	status := metrics.StatusOK
	if err != nil {
		status = metrics.StatusError
	}
	metrics.ModelCallsTotal(status, kind)
	metrics.ModelCallDuration(status, kind, time.Since(start))
}

func attachmentKind(data *llm.InlineData) string {
	if data == nil {
		return metrics.KindText
	}
	family, _, _ := strings.Cut(data.MIMEType, "/")
	if family == "" {
		return "unknown"
	}
	return family
}

func getCacheKey(model, prompt string, data *llm.InlineData) string {
	parts := []string{model, prompt}
	if data != nil {
		parts = append(parts, data.MIMEType, data.Data)
	}

	hash := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(hash, "%d:%s|", len(p), p)
	}
	return hex.EncodeToString(hash.Sum(nil))
}
