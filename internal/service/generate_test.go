package service

import (
	"context"
	"errors"
	"io"
	"iter"
	"log"
	"sync"
	"testing"

	"github.com/kdduha/genai-gateway/internal/config"
	"github.com/kdduha/genai-gateway/internal/llm"
	"github.com/kdduha/genai-gateway/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	text   string
	stream []string
	err    error
	calls  int
}

func (s *stubClient) Generate(context.Context, string, string, *llm.InlineData) (string, error) {
	s.calls++
	return s.text, s.err
}

func (s *stubClient) GenerateStream(context.Context, string, string, *llm.InlineData) iter.Seq2[string, error] {
	s.calls++
	return func(yield func(string, error) bool) {
		for _, d := range s.stream {
			if !yield(d, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string]string)}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func newTestService(client llm.Client) *GenerateService {
	return NewGenerateService(log.New(io.Discard, "", 0), client, config.ModelConfig{Name: "test-model"})
}

func collect(t *testing.T, ch <-chan models.StreamChunk) ([]models.StreamChunk, error) {
	t.Helper()
	var chunks []models.StreamChunk
	for c := range ch {
		if c.Err != nil {
			return chunks, c.Err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func TestGenerate(t *testing.T) {
	client := &stubClient{text: "result"}
	svc := newTestService(client)

	resp, err := svc.Generate(context.Background(), "prompt", &llm.InlineData{Data: "AAEC", MIMEType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "result", resp.Result)
}

func TestGeneratePropagatesError(t *testing.T) {
	upstream := errors.New("permission denied")
	svc := newTestService(&stubClient{err: upstream})

	_, err := svc.Generate(context.Background(), "prompt", nil)
	assert.ErrorIs(t, err, upstream)
}

func TestGenerateUsesCache(t *testing.T) {
	client := &stubClient{text: "first"}
	svc := newTestService(client)
	svc.SetCacheClient(newMemoryCache())

	data := &llm.InlineData{Data: "AAEC", MIMEType: "audio/wav"}
	for range 3 {
		resp, err := svc.Generate(context.Background(), "prompt", data)
		require.NoError(t, err)
		assert.Equal(t, "first", resp.Result)
	}
	assert.Equal(t, 1, client.calls)

	_, err := svc.Generate(context.Background(), "prompt", &llm.InlineData{Data: "AAED", MIMEType: "audio/wav"})
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}

func TestGenerateCacheErrorFallsThrough(t *testing.T) {
	client := &stubClient{text: "fresh"}
	svc := newTestService(client)
	cache := newMemoryCache()
	cache.getErr = errors.New("redis down")
	svc.SetCacheClient(cache)

	resp, err := svc.Generate(context.Background(), "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.Result)
	assert.Equal(t, 1, client.calls)
}

func TestGenerateStream(t *testing.T) {
	client := &stubClient{stream: []string{"a", "b", "c"}}
	svc := newTestService(client)
	cache := newMemoryCache()
	svc.SetCacheClient(cache)

	ch, err := svc.GenerateStream(context.Background(), "prompt")
	require.NoError(t, err)
	chunks, err := collect(t, ch)
	require.NoError(t, err)

	require.Len(t, chunks, 4)
	assert.Equal(t, "a", chunks[0].Delta)
	assert.True(t, chunks[3].Done)

	ch, err = svc.GenerateStream(context.Background(), "prompt")
	require.NoError(t, err)
	chunks, err = collect(t, ch)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, models.StreamChunk{Delta: "abc", Done: true}, chunks[0])
	assert.Equal(t, 1, client.calls)
}

func TestGenerateStreamError(t *testing.T) {
	svc := newTestService(&stubClient{stream: []string{"a"}, err: errors.New("reset")})

	ch, err := svc.GenerateStream(context.Background(), "prompt")
	require.NoError(t, err)
	chunks, err := collect(t, ch)
	assert.EqualError(t, err, "reset")
	assert.Len(t, chunks, 1)
}

func TestGenerateStreamEmptyPrompt(t *testing.T) {
	_, err := newTestService(&stubClient{}).GenerateStream(context.Background(), " ")
	assert.ErrorIs(t, err, llm.ErrEmptyPrompt)
}

func TestGetCacheKey(t *testing.T) {
	base := getCacheKey("m", "p", &llm.InlineData{Data: "AA", MIMEType: "image/png"})

	assert.Equal(t, base, getCacheKey("m", "p", &llm.InlineData{Data: "AA", MIMEType: "image/png"}))
	assert.NotEqual(t, base, getCacheKey("m2", "p", &llm.InlineData{Data: "AA", MIMEType: "image/png"}))
	assert.NotEqual(t, base, getCacheKey("m", "p", &llm.InlineData{Data: "AA", MIMEType: "image/jpeg"}))
	assert.NotEqual(t, base, getCacheKey("m", "p", nil))
	assert.NotEqual(t, getCacheKey("m", "ab", nil), getCacheKey("ma", "b", nil))
}

func TestAttachmentKind(t *testing.T) {
	assert.Equal(t, "text", attachmentKind(nil))
	assert.Equal(t, "image", attachmentKind(&llm.InlineData{MIMEType: "image/png"}))
	assert.Equal(t, "application", attachmentKind(&llm.InlineData{MIMEType: "application/pdf"}))
	assert.Equal(t, "unknown", attachmentKind(&llm.InlineData{}))
}
