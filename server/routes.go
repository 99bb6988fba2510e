// Package server exposes video generation over HTTP. Requests stream NDJSON
// progress lines while the denoise loop runs and finish with the written
// frame paths.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/latentlab/videodit/envconfig"
	"github.com/latentlab/videodit/sample"
)

// PipelineLoader resolves a model name to a ready pipeline. The default
// loader reads model directories under envconfig.Models.
type PipelineLoader func(name string) (*sample.Pipeline, error)

// Server routes generation requests onto pipelines.
type Server struct {
	addr   net.Addr
	load   PipelineLoader
	outDir string
}

// New creates a server that loads models from the configured model
// directory and writes frames under outDir.
func New(outDir string) *Server {
	return &Server{
		load:   func(name string) (*sample.Pipeline, error) { return sample.LoadPipeline(envconfig.Models(), name) },
		outDir: outDir,
	}
}

// GenerateRoutes builds the HTTP handler.
func (s *Server) GenerateRoutes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "videodit is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "videodit is running") })
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	r.GET("/api/models", s.ListHandler)
	r.POST("/api/generate", s.GenerateHandler)

	return r
}

// Serve runs the server on the configured host until the context is done or
// a termination signal arrives.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", envconfig.Host())
	if err != nil {
		return err
	}
	s.addr = ln.Addr()

	srv := &http.Server{Handler: s.GenerateRoutes()}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ctx.Done():
		case sig := <-sigs:
			slog.Info("shutting down", "signal", sig.String())
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("listening", "addr", s.addr.String(), "env", envconfig.Values())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestLogger tags each request with an id and logs its outcome.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Header("X-Request-Id", id)
		start := time.Now()

		c.Next()

		slog.Info("request",
			"id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond))
	}
}

// streamResponse writes channel values as NDJSON lines until the channel
// closes. A gin.H with an "error" key aborts the stream.
func streamResponse(c *gin.Context, ch chan any) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Stream(func(w io.Writer) bool {
		val, ok := <-ch
		if !ok {
			return false
		}

		if h, ok := val.(gin.H); ok {
			if e, ok := h["error"].(string); ok {
				status, ok := h["status"].(int)
				if !ok {
					status = http.StatusInternalServerError
				}
				if !c.Writer.Written() {
					c.JSON(status, gin.H{"error": e})
				} else if err := json.NewEncoder(c.Writer).Encode(gin.H{"error": e}); err != nil {
					slog.Error("streamResponse failed to encode json error", "error", err)
				}
				return false
			}
		}

		bts, err := json.Marshal(val)
		if err != nil {
			slog.Info(fmt.Sprintf("streamResponse: json.Marshal failed with %s", err))
			return false
		}
		bts = append(bts, '\n')
		if _, err := w.Write(bts); err != nil {
			slog.Info(fmt.Sprintf("streamResponse: w.Write failed with %s", err))
			return false
		}
		return true
	})
}
