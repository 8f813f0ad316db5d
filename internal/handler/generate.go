package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/kdduha/genai-gateway/internal/llm"
	"github.com/kdduha/genai-gateway/internal/metrics"
	"github.com/kdduha/genai-gateway/internal/models"
	"github.com/kdduha/genai-gateway/internal/payload"
	"github.com/kdduha/genai-gateway/internal/upload"
)

const promptField = "prompt"

type generateService interface {
	Generate(ctx context.Context, prompt string, data *llm.InlineData) (*models.GenerateResponse, error)
	GenerateStream(ctx context.Context, prompt string) (<-chan models.StreamChunk, error)
}

type uploadReceiver interface {
	Receive(w http.ResponseWriter, r *http.Request, field string) (*upload.Attachment, error)
}

// attachmentEndpoint differs between the image, document and audio routes
// only by the form field it reads and the prompt used when none is sent.
type attachmentEndpoint struct {
	name          string
	field         string
	defaultPrompt string
}

var (
	imageEndpoint = attachmentEndpoint{
		name:          "Image",
		field:         "image",
		defaultPrompt: "Describe this image",
	}
	documentEndpoint = attachmentEndpoint{
		name:          "Document",
		field:         "document",
		defaultPrompt: "Summarize this document.",
	}
	audioEndpoint = attachmentEndpoint{
		name:          "Audio",
		field:         "audio",
		defaultPrompt: "Transcribe this audio",
	}
)

type GenerateHandler struct {
	logger   *log.Logger
	service  generateService
	receiver uploadReceiver
}

func NewGenerateHandler(logger *log.Logger, service generateService, receiver uploadReceiver) *GenerateHandler {
	return &GenerateHandler{
		logger:   logger,
		service:  service,
		receiver: receiver,
	}
}

// GenerateText godoc
// @Summary Generate text from a prompt
// @Description Sends the prompt to the model and returns the generated text.
// @Tags generate
// @Accept json
// @Produce json
// @Param request body models.GenerateTextRequest true "Prompt"
// @Success 200 {object} models.GenerateResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /generate-text [post]
func (h *GenerateHandler) GenerateText(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTextRequest(w, r, "Text")
	if !ok {
		return
	}

	resp, err := h.service.Generate(r.Context(), req.Prompt, nil)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Text", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GenerateFromImage godoc
// @Summary Generate text from an image
// @Description Uploads an image and a prompt (default "Describe this image") and returns the generated text.
// @Tags generate
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Image file"
// @Param prompt formData string false "Prompt"
// @Success 200 {object} models.GenerateResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /generate-from-image [post]
func (h *GenerateHandler) GenerateFromImage(w http.ResponseWriter, r *http.Request) {
	h.generateFromAttachment(w, r, imageEndpoint)
}

// GenerateFromDocument godoc
// @Summary Generate text from a document
// @Description Uploads a document (PDF, DOCX, TXT, ...) and a prompt (default "Summarize this document.") and returns the generated text.
// @Tags generate
// @Accept multipart/form-data
// @Produce json
// @Param document formData file true "Document file"
// @Param prompt formData string false "Prompt"
// @Success 200 {object} models.GenerateResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /generate-from-document [post]
func (h *GenerateHandler) GenerateFromDocument(w http.ResponseWriter, r *http.Request) {
	h.generateFromAttachment(w, r, documentEndpoint)
}

// GenerateFromAudio godoc
// @Summary Generate text from audio
// @Description Uploads an audio file and a prompt (default "Transcribe this audio") and returns the generated text.
// @Tags generate
// @Accept multipart/form-data
// @Produce json
// @Param audio formData file true "Audio file"
// @Param prompt formData string false "Prompt"
// @Success 200 {object} models.GenerateResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /generate-from-audio [post]
func (h *GenerateHandler) GenerateFromAudio(w http.ResponseWriter, r *http.Request) {
	h.generateFromAttachment(w, r, audioEndpoint)
}

func (h *GenerateHandler) generateFromAttachment(w http.ResponseWriter, r *http.Request, ep attachmentEndpoint) {
	att, err := h.receiver.Receive(w, r, ep.field)
	if err != nil {
		metrics.UploadsTotal(metrics.StatusError, ep.field)
		h.writeError(w, uploadErrorStatus(err), ep.name, err)
		return
	}
	defer func() {
		if err := att.Remove(); err != nil {
			h.logger.Printf("%s cleanup error: %v\n", ep.name, err)
		}
	}()
	metrics.UploadsTotal(metrics.StatusOK, ep.field)
	metrics.UploadSize(ep.field, att.Size)

	prompt := r.FormValue(promptField)
	if prompt == "" {
		prompt = ep.defaultPrompt
	}

	data, err := payload.EncodeFile(att.Path)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, ep.name, err)
		return
	}

	resp, err := h.service.Generate(r.Context(), prompt, &llm.InlineData{
		Data:     data,
		MIMEType: att.MIMEType,
		Name:     att.OriginalName,
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, ep.name, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GenerateTextStream godoc
// @Summary Stream generated text
// @Description Streams generated tokens for a prompt as server-sent events.
// @Tags generate
// @Accept json
// @Produce text/event-stream
// @Param request body models.GenerateTextRequest true "Prompt"
// @Success 200 {object} models.StreamChunk "Stream of tokens (SSE)"
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /generate-text/stream [post]
func (h *GenerateHandler) GenerateTextStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTextRequest(w, r, "Stream")
	if !ok {
		return
	}

	stream, err := h.service.GenerateStream(r.Context(), req.Prompt)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Stream", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher := http.NewResponseController(w)

	for chunk := range stream {
		if chunk.Err != nil {
			h.logger.Printf("Stream error: %v\n", chunk.Err)
			errData, _ := sonic.Marshal(models.ErrorResponse{Error: chunk.Err.Error()})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", errData)
			flusher.Flush()
			return
		}

		data, err := sonic.Marshal(chunk)
		if err != nil {
			fmt.Fprintf(w, "event: error\ndata: marshal error %v\n\n", err)
			flusher.Flush()
			return
		}

		fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
		flusher.Flush()

		if chunk.Done {
			fmt.Fprintf(w, "event: done\ndata: {}\n\n")
			flusher.Flush()
			return
		}
	}
}

func (h *GenerateHandler) decodeTextRequest(w http.ResponseWriter, r *http.Request, name string) (*models.GenerateTextRequest, bool) {
	var req models.GenerateTextRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, name, fmt.Errorf("invalid JSON: %w", err))
		return nil, false
	}

	if err := req.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, name, fmt.Errorf("request validation failed: %w", err))
		return nil, false
	}
	return &req, true
}

func uploadErrorStatus(err error) int {
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case upload.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *GenerateHandler) writeError(w http.ResponseWriter, status int, name string, err error) {
	h.logger.Printf("%s Error: %v\n", name, err)
	h.writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
}

func (h *GenerateHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(v); err != nil {
		h.logger.Printf("failed to encode response: %v\n", err)
	}
}
