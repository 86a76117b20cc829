package api

import (
	"github.com/google/uuid"
	"github.com/samcharles93/pocket/internal/engine"
)

type LoadModelRequest struct {
	Path string `json:"path"`
}

type ModelResponse struct {
	ID     engine.ModelHandle `json:"id"`
	Object string             `json:"object"`
	Path   string             `json:"path,omitempty"`
}

type CreateContextRequest struct {
	Model engine.ModelHandle `json:"model"`
}

type ContextResponse struct {
	ID     engine.ContextHandle `json:"id"`
	Object string               `json:"object"`
	Model  engine.ModelHandle   `json:"model"`
}

type DeletedResponse struct {
	ID      uint64 `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// GenerateRequest drives both whole and streaming generation.
type GenerateRequest struct {
	Input     string `json:"input"`
	MaxTokens *int   `json:"max_tokens,omitempty"`
	Stream    *bool  `json:"stream,omitempty"`
}

type GenerateResponse struct {
	ID         string               `json:"id"`
	Object     string               `json:"object"`
	CreatedAt  int64                `json:"created_at"`
	Context    engine.ContextHandle `json:"context"`
	Status     string               `json:"status"`
	OutputText string               `json:"output_text"`
}

type StreamStatus struct {
	Context  engine.ContextHandle `json:"context"`
	Token    string               `json:"token,omitempty"`
	Complete bool                 `json:"complete"`
}

type MemoryResponse struct {
	UsageBytes   int64 `json:"usage_bytes"`
	CeilingBytes int64 `json:"ceiling_bytes"`
	Healthy      bool  `json:"healthy"`
}

type CeilingRequest struct {
	Bytes int64 `json:"bytes"`
}

// tokenEvent is one SSE payload of a streamed generation.
type tokenEvent struct {
	Type           string            `json:"type"`
	ID             string            `json:"id"`
	SequenceNumber int               `json:"sequence_number"`
	Delta          string            `json:"delta,omitempty"`
	Text           string            `json:"text,omitempty"`
	Response       *GenerateResponse `json:"response,omitempty"`
	Error          *ResponseError    `json:"error,omitempty"`
}

func newGenerationID() string {
	return "gen_" + uuid.NewString()
}
