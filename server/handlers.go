package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/latentlab/videodit/api"
	"github.com/latentlab/videodit/dit"
	"github.com/latentlab/videodit/sample"
	"github.com/latentlab/videodit/video"
)

// Request defaults. Frame counts stay even so both network families accept
// them.
const (
	defaultFrames   = 16
	defaultSize     = 256
	defaultSteps    = 30
	defaultGuidance = 5
)

// ListHandler reports every registered network variant.
func (s *Server) ListHandler(c *gin.Context) {
	var models []api.ModelInfo
	for _, name := range dit.Variants() {
		cfg, err := dit.VariantConfig(name)
		if err != nil {
			continue
		}
		layers := 0
		for _, n := range cfg.NumLayers {
			layers += n
		}
		models = append(models, api.ModelInfo{Name: name, Family: "sparse", HiddenSize: cfg.HiddenSize(), Layers: layers})
	}
	for _, name := range dit.UDiTVariants() {
		cfg, err := dit.UDiTVariantConfig(name)
		if err != nil {
			continue
		}
		layers := 0
		for _, n := range cfg.Depth {
			layers += n
		}
		models = append(models, api.ModelInfo{Name: name, Family: "udit", HiddenSize: cfg.HiddenSize, Layers: layers})
	}
	c.JSON(http.StatusOK, api.ListResponse{Models: models})
}

// GenerateHandler runs one generation, streaming progress as NDJSON unless
// the request disables streaming.
func (s *Server) GenerateHandler(c *gin.Context) {
	var req api.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Model == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return
	}
	if req.Prompt == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}
	if req.Frames == 0 {
		req.Frames = defaultFrames
	}
	if req.Height == 0 {
		req.Height = defaultSize
	}
	if req.Width == 0 {
		req.Width = defaultSize
	}
	if req.Steps == 0 {
		req.Steps = defaultSteps
	}
	if req.Guidance == 0 {
		req.Guidance = defaultGuidance
	}

	pipeline, err := s.load(req.Model)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	started := time.Now()
	ch := make(chan any)
	go func() {
		defer close(ch)
		paths, err := s.generate(c.Request.Context(), pipeline, req, func(step, total int) {
			ch <- api.GenerateResponse{
				Model:      req.Model,
				CreatedAt:  time.Now().UTC(),
				Step:       step,
				TotalSteps: total,
			}
		})
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, context.Canceled) {
				status = 499 // client closed request
			}
			ch <- gin.H{"error": err.Error(), "status": status}
			return
		}
		ch <- api.GenerateResponse{
			Model:         req.Model,
			CreatedAt:     time.Now().UTC(),
			Done:          true,
			Frames:        paths,
			TotalDuration: time.Since(started),
		}
	}()

	if req.Stream != nil && !*req.Stream {
		var final api.GenerateResponse
		for val := range ch {
			switch v := val.(type) {
			case api.GenerateResponse:
				if v.Done {
					final = v
				}
			case gin.H:
				status, ok := v["status"].(int)
				if !ok {
					status = http.StatusInternalServerError
				}
				c.JSON(status, gin.H{"error": v["error"]})
				return
			}
		}
		c.JSON(http.StatusOK, final)
		return
	}

	streamResponse(c, ch)
}

func (s *Server) generate(ctx context.Context, p *sample.Pipeline, req api.GenerateRequest, progress func(step, total int)) ([]string, error) {
	// Requests size the output in pixels; the denoise loop runs on the
	// compressed latent grid.
	st, ss := p.Decoder.Strides()
	if req.Frames%st != 0 || req.Height%ss != 0 || req.Width%ss != 0 {
		return nil, fmt.Errorf("output size %dx%dx%d must be a multiple of the autoencoder strides %dx%dx%d",
			req.Frames, req.Height, req.Width, st, ss, ss)
	}

	pixels, err := p.Generate(ctx, sample.Options{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Frames:         req.Frames / st,
		Height:         req.Height / ss,
		Width:          req.Width / ss,
		Steps:          req.Steps,
		Guidance:       req.Guidance,
		Seed:           req.Seed,
		Progress:       progress,
	})
	if err != nil {
		return nil, err
	}
	frames, err := video.Frames(pixels)
	if err != nil {
		return nil, err
	}
	return video.WriteFrames(filepath.Join(s.outDir, uuid.New().String()), frames)
}
