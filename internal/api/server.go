// Package api exposes the engine call surface over HTTP.
package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/pocket/internal/engine"
	"github.com/samcharles93/pocket/internal/governor"
	"github.com/samcharles93/pocket/internal/logger"
	"github.com/samcharles93/pocket/internal/version"
)

// DefaultMaxTokens applies when a generate request leaves max_tokens unset.
const DefaultMaxTokens = 128

// Engine is the part of *engine.Engine the server drives.
type Engine interface {
	LoadModel(path string) (engine.ModelHandle, error)
	FreeModel(m engine.ModelHandle) error
	CreateContext(m engine.ModelHandle) (engine.ContextHandle, error)
	FreeContext(c engine.ContextHandle) error
	Generate(c engine.ContextHandle, text string, maxTokens int) (string, error)
	StartStreaming(c engine.ContextHandle, text string, maxTokens int) error
	NextStreamingToken(c engine.ContextHandle) (string, error)
	IsStreamingComplete(c engine.ContextHandle) bool
	StopStreaming(c engine.ContextHandle) error
	MemoryUsage() int64
	IsMemoryHealthy() bool
	ForceCleanup() governor.CleanupReport
	RecoverFromError() bool
	SetMemoryCeiling(bytes int64) error
	SystemInfo() engine.SystemInfo
}

type Server struct {
	engine   Engine
	gatherer prometheus.Gatherer
	log      logger.Logger
	clock    func() time.Time
}

// NewServer wires eng behind the HTTP routes. A nil gatherer serves the
// default Prometheus registry.
func NewServer(eng Engine, gatherer prometheus.Gatherer, log logger.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		engine:   eng,
		gatherer: gatherer,
		log:      log,
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	// Models and contexts
	e.POST("/v1/models", s.handleLoadModel)
	e.DELETE("/v1/models/:id", s.handleFreeModel)
	e.POST("/v1/contexts", s.handleCreateContext)
	e.DELETE("/v1/contexts/:id", s.handleFreeContext)

	// Generation
	e.POST("/v1/contexts/:id/generate", s.handleGenerate)
	e.POST("/v1/contexts/:id/stream", s.handleStartStream)
	e.GET("/v1/contexts/:id/stream/next", s.handleNextToken)
	e.GET("/v1/contexts/:id/stream/status", s.handleStreamStatus)
	e.DELETE("/v1/contexts/:id/stream", s.handleStopStream)

	// Memory
	e.GET("/v1/memory", s.handleMemory)
	e.POST("/v1/memory/cleanup", s.handleCleanup)
	e.POST("/v1/memory/recover", s.handleRecover)
	e.PUT("/v1/memory/ceiling", s.handleSetCeiling)

	e.GET("/v1/system", s.handleSystem)
	e.GET("/healthz", s.handleHealth)

	metrics := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	e.GET("/metrics", func(c *echo.Context) error {
		metrics.ServeHTTP(c.Response(), c.Request())
		return nil
	})
}

func (s *Server) handleLoadModel(c *echo.Context) error {
	req, err := decodeJSON[LoadModelRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if strings.TrimSpace(req.Path) == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "path is required", "path", "")
	}
	h, err := s.engine.LoadModel(req.Path)
	if err != nil {
		return writeFault(c, err)
	}
	return c.JSON(http.StatusCreated, ModelResponse{ID: h, Object: "model", Path: req.Path})
}

func (s *Server) handleFreeModel(c *echo.Context) error {
	id, err := handleParam(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := s.engine.FreeModel(engine.ModelHandle(id)); err != nil {
		return writeFault(c, err)
	}
	return c.JSON(http.StatusOK, DeletedResponse{ID: id, Object: "model.deleted", Deleted: true})
}

func (s *Server) handleCreateContext(c *echo.Context) error {
	req, err := decodeJSON[CreateContextRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	h, err := s.engine.CreateContext(req.Model)
	if err != nil {
		return writeFault(c, err)
	}
	return c.JSON(http.StatusCreated, ContextResponse{ID: h, Object: "context", Model: req.Model})
}

func (s *Server) handleFreeContext(c *echo.Context) error {
	id, err := handleParam(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := s.engine.FreeContext(engine.ContextHandle(id)); err != nil {
		return writeFault(c, err)
	}
	return c.JSON(http.StatusOK, DeletedResponse{ID: id, Object: "context.deleted", Deleted: true})
}

func (s *Server) handleGenerate(c *echo.Context) error {
	id, err := handleParam(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	ch := engine.ContextHandle(id)
	resp := GenerateResponse{
		ID:        newGenerationID(),
		Object:    "generation",
		CreatedAt: s.clock().Unix(),
		Context:   ch,
	}
	if (req.Stream != nil && *req.Stream) || streamParam(c) {
		return s.streamGeneration(c, ch, req, resp)
	}

	out, err := s.engine.Generate(ch, req.Input, maxTokens(req))
	if err != nil {
		return writeFault(c, err)
	}
	resp.Status = "completed"
	resp.OutputText = engine.ResponseText(out)
	return c.JSON(http.StatusOK, resp)
}

// streamGeneration runs a generation through the streaming operations and
// forwards each token as an SSE event. A disconnected client stops the run.
func (s *Server) streamGeneration(c *echo.Context, ch engine.ContextHandle, req GenerateRequest, resp GenerateResponse) error {
	if err := s.engine.StartStreaming(ch, req.Input, maxTokens(req)); err != nil {
		return writeFault(c, err)
	}
	w, err := NewSSEStreamWriter(c, resp)
	if err != nil {
		_ = s.engine.StopStreaming(ch)
		return writeBadRequest(c, err.Error())
	}
	if err := w.Begin(); err != nil {
		_ = s.engine.StopStreaming(ch)
		return err
	}

	ctx := c.Request().Context()
	var tokens []string
	for !s.engine.IsStreamingComplete(ch) {
		if ctx.Err() != nil {
			_ = s.engine.StopStreaming(ch)
			s.log.Info("client went away, stream stopped", "context", uint64(ch), "id", resp.ID)
			return w.Incomplete(strings.Join(tokens, " "))
		}
		tok, err := s.engine.NextStreamingToken(ch)
		if err != nil {
			s.log.Error("streaming generation failed", "context", uint64(ch), "id", resp.ID, "error", err)
			return w.Failed(err)
		}
		if tok == "" {
			continue
		}
		tokens = append(tokens, tok)
		if err := w.EmitToken(tok); err != nil {
			_ = s.engine.StopStreaming(ch)
			return err
		}
	}
	return w.Complete(strings.Join(tokens, " "))
}

func (s *Server) handleStartStream(c *echo.Context) error {
	id, err := handleParam(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	ch := engine.ContextHandle(id)
	if err := s.engine.StartStreaming(ch, req.Input, maxTokens(req)); err != nil {
		return writeFault(c, err)
	}
	return c.JSON(http.StatusAccepted, StreamStatus{Context: ch, Complete: s.engine.IsStreamingComplete(ch)})
}

func (s *Server) handleNextToken(c *echo.Context) error {
	id, err := handleParam(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	ch := engine.ContextHandle(id)
	tok, err := s.engine.NextStreamingToken(ch)
	if err != nil {
		return writeFault(c, err)
	}
	return c.JSON(http.StatusOK, StreamStatus{Context: ch, Token: tok, Complete: s.engine.IsStreamingComplete(ch)})
}

func (s *Server) handleStreamStatus(c *echo.Context) error {
	id, err := handleParam(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	ch := engine.ContextHandle(id)
	return c.JSON(http.StatusOK, StreamStatus{Context: ch, Complete: s.engine.IsStreamingComplete(ch)})
}

func (s *Server) handleStopStream(c *echo.Context) error {
	id, err := handleParam(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	ch := engine.ContextHandle(id)
	if err := s.engine.StopStreaming(ch); err != nil {
		return writeFault(c, err)
	}
	return c.JSON(http.StatusOK, StreamStatus{Context: ch, Complete: true})
}

func (s *Server) handleMemory(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.memory())
}

func (s *Server) handleCleanup(c *echo.Context) error {
	report := s.engine.ForceCleanup()
	s.log.Info("forced cleanup",
		"idle_contexts", report.IdleContexts,
		"contexts", report.Contexts,
		"models", report.Models,
		"healthy", report.Healthy,
	)
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleRecover(c *echo.Context) error {
	s.engine.RecoverFromError()
	return c.JSON(http.StatusOK, s.memory())
}

func (s *Server) handleSetCeiling(c *echo.Context) error {
	req, err := decodeJSON[CeilingRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := s.engine.SetMemoryCeiling(req.Bytes); err != nil {
		return writeFault(c, err)
	}
	return c.JSON(http.StatusOK, s.memory())
}

func (s *Server) handleSystem(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.SystemInfo())
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"healthy": s.engine.IsMemoryHealthy(),
		"version": version.Resolve(),
	})
}

func (s *Server) memory() MemoryResponse {
	info := s.engine.SystemInfo()
	return MemoryResponse{
		UsageBytes:   s.engine.MemoryUsage(),
		CeilingBytes: info.Ceiling,
		Healthy:      s.engine.IsMemoryHealthy(),
	}
}

func maxTokens(req GenerateRequest) int {
	if req.MaxTokens == nil {
		return DefaultMaxTokens
	}
	return *req.MaxTokens
}

func handleParam(c *echo.Context) (uint64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, newInvalidRequest("invalid id " + strconv.Quote(raw))
	}
	return id, nil
}

func streamParam(c *echo.Context) bool {
	q := c.QueryParam("stream")
	return q == "1" || strings.EqualFold(q, "true")
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, newInvalidRequest("invalid JSON body: " + err.Error())
	}
	return out, nil
}
