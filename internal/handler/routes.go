package handler

import "github.com/go-chi/chi/v5"

func (h *GenerateHandler) Register(r chi.Router) {
	r.Post("/generate-text", h.GenerateText)
	r.Post("/generate-text/stream", h.GenerateTextStream)
	r.Post("/generate-from-image", h.GenerateFromImage)
	r.Post("/generate-from-document", h.GenerateFromDocument)
	r.Post("/generate-from-audio", h.GenerateFromAudio)
}
