package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/latentlab/videodit/api"
	"github.com/latentlab/videodit/dit"
	"github.com/latentlab/videodit/sample"
	"github.com/latentlab/videodit/text"
	"github.com/latentlab/videodit/vae"
)

func init() { gin.SetMode(gin.TestMode) }

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := dit.VariantConfig("sparse-debug")
	require.NoError(t, err)
	model, err := dit.NewSparseDiT(cfg)
	require.NoError(t, err)
	aeCfg, err := vae.Lookup("debug-2x2")
	require.NoError(t, err)

	pipeline := &sample.Pipeline{
		Model:          model,
		Scheduler:      sample.NewFlowMatchEuler(1),
		Encoder:        text.NewTable(256, cfg.CaptionDim, 8, 7),
		Tokenizer:      text.Tokenizer{Vocab: 256, MaxLen: 8},
		Decoder:        vae.NewPooling(aeCfg),
		LatentChannels: cfg.InChannels,
	}
	return &Server{
		outDir: t.TempDir(),
		load: func(name string) (*sample.Pipeline, error) {
			if name != "debug" {
				return nil, fmt.Errorf("model %q not found", name)
			}
			return pipeline, nil
		},
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := testServer(t).GenerateRoutes()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "videodit is running", w.Body.String())
	require.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestListModels(t *testing.T) {
	h := testServer(t).GenerateRoutes()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	names := map[string]api.ModelInfo{}
	for _, m := range resp.Models {
		names[m.Name] = m
	}
	require.Contains(t, names, "sparse-5b")
	require.Contains(t, names, "udit-xl")
	require.Equal(t, "sparse", names["sparse-5b"].Family)
	require.Equal(t, "udit", names["udit-xl"].Family)
	require.Positive(t, names["sparse-5b"].Layers)
}

func generateBody(t *testing.T, req api.GenerateRequest) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestGenerateStreams(t *testing.T) {
	// Streaming uses http.CloseNotifier, so this needs a live server rather
	// than a bare recorder.
	srv := httptest.NewServer(testServer(t).GenerateRoutes())
	defer srv.Close()

	body := generateBody(t, api.GenerateRequest{
		Model: "debug", Prompt: "a comet", Frames: 4, Height: 8, Width: 8, Steps: 2, Guidance: 1, Seed: 3,
	})
	resp, err := http.Post(srv.URL+"/api/generate", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var responses []api.GenerateResponse
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var resp api.GenerateResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	require.Len(t, responses, 3)
	require.Equal(t, 1, responses[0].Step)
	require.Equal(t, 2, responses[0].TotalSteps)
	require.False(t, responses[1].Done)

	final := responses[2]
	require.True(t, final.Done)
	require.Len(t, final.Frames, 4)
	for _, p := range final.Frames {
		_, err := os.Stat(p)
		require.NoError(t, err)
	}
}

func TestGenerateUnary(t *testing.T) {
	h := testServer(t).GenerateRoutes()

	stream := false
	body := generateBody(t, api.GenerateRequest{
		Model: "debug", Prompt: "rain", Frames: 2, Height: 8, Width: 8, Steps: 1, Guidance: 1, Stream: &stream,
	})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/generate", body))
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Done)
	require.Len(t, resp.Frames, 2)
}

func TestGenerateValidation(t *testing.T) {
	h := testServer(t).GenerateRoutes()

	cases := []api.GenerateRequest{
		{Prompt: "no model"},
		{Model: "debug"},
	}
	for _, req := range cases {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/generate", generateBody(t, req)))
		require.Equal(t, http.StatusBadRequest, w.Code)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/generate", generateBody(t, api.GenerateRequest{
		Model: "nope", Prompt: "x",
	})))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateRejectsUnstridableSize(t *testing.T) {
	srv := httptest.NewServer(testServer(t).GenerateRoutes())
	defer srv.Close()

	body := generateBody(t, api.GenerateRequest{
		Model: "debug", Prompt: "x", Frames: 3, Height: 8, Width: 8, Steps: 1, Guidance: 1,
	})
	resp, err := http.Post(srv.URL+"/api/generate", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(data), "strides")
}
