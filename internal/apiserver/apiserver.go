// Package apiserver is the optional local HTTP front end to the
// compiler: POST a network description and capability name, get back
// an encoded command stream. It exists for tooling that would rather
// call out to a long-running compile service than shell out to the
// CLI for every graph (SPEC_FULL.md §6, A5).
package apiserver

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/ethosn/cascadec/internal/compiler"
	"github.com/ethosn/cascadec/internal/config"
	"github.com/ethosn/cascadec/internal/frontend"
	"github.com/ethosn/cascadec/internal/hwcaps"
	"github.com/ethosn/cascadec/internal/logger"
	"github.com/ethosn/cascadec/pkg/ncf"
)

// CompileRequest is the wire shape of a compile call: a network
// description (the same JSON the CLI's `compile` subcommand reads) and
// the name of the target capability to compile against.
type CompileRequest struct {
	Network    frontend.OperatorGraph `json:"network"`
	Capability string                 `json:"capability"`
}

// CompileResponse carries the compiled command stream, base64-encoded
// by encoding/json's default []byte handling, plus a summary a caller
// can log without decoding the payload.
type CompileResponse struct {
	RequestID string `json:"request_id"`
	Agents    int    `json:"agents"`
	Glues     int    `json:"glues"`
	Command   []byte `json:"command_stream"`
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

// Server wires the compiler behind a small HTTP surface: one compile
// endpoint and a health check.
type Server struct {
	caps    map[string]hwcaps.Caps
	log     logger.Logger
	limiter *rate.Limiter
}

// NewServer builds a Server over a fixed set of named capabilities
// (the same names a `config.yaml`'s `capability` field would resolve
// against). ratePerSecond and burst configure the shared token-bucket
// limiter guarding /v1/compile; a ratePerSecond of 0 disables limiting.
func NewServer(caps map[string]hwcaps.Caps, log logger.Logger, ratePerSecond float64, burst int) *Server {
	if log == nil {
		log = logger.Default()
	}
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	return &Server{caps: caps, log: log, limiter: limiter}
}

// Register mounts the server's routes onto e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/health", s.handleHealth)
	e.POST("/v1/compile", s.handleCompile)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCompile(c *echo.Context) error {
	requestID := uuid.NewString()

	if s.limiter != nil && !s.limiter.Allow() {
		return s.writeError(c, requestID, http.StatusTooManyRequests, "rate limit exceeded")
	}

	var req CompileRequest
	body := c.Request().Body
	defer func() { _ = body.Close() }()
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return s.writeError(c, requestID, http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	caps, ok := s.caps[req.Capability]
	if !ok {
		return s.writeError(c, requestID, http.StatusBadRequest, "unknown capability: "+req.Capability)
	}

	log := s.log.With("request_id", requestID)
	start := time.Now()

	result, err := compiler.Compile(&req.Network, compiler.Options{
		Caps:        caps,
		Compilation: config.DefaultOptions(),
		Log:         log,
	})
	if err != nil {
		log.Warn("compile failed", "error", err.Error(), "duration", time.Since(start).String())
		return s.writeError(c, requestID, http.StatusUnprocessableEntity, err.Error())
	}

	payload, err := ncf.EncodeCascade(result.Stream)
	if err != nil {
		log.Error("encode failed", "error", err.Error())
		return s.writeError(c, requestID, http.StatusInternalServerError, "encode: "+err.Error())
	}

	log.Info("compile succeeded", "agents", len(result.Stream.Agents), "glues", len(result.Lifetimes), "duration", time.Since(start).String())

	return c.JSON(http.StatusOK, CompileResponse{
		RequestID: requestID,
		Agents:    len(result.Stream.Agents),
		Glues:     len(result.Lifetimes),
		Command:   payload,
	})
}

func (s *Server) writeError(c *echo.Context, requestID string, status int, msg string) error {
	return c.JSON(status, ErrorResponse{RequestID: requestID, Error: msg})
}
