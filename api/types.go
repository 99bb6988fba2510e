// Package api defines the request and response types spoken by the
// generation server.
package api

import (
	"fmt"
	"time"
)

// StatusError carries an HTTP status alongside the error message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the server logs for details"
	}
}

// GenerateRequest asks the server to synthesize a clip.
type GenerateRequest struct {
	// Model names a registered network variant.
	Model string `json:"model"`

	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`

	// Frames, Height and Width size the output in pixels per frame.
	Frames int `json:"frames,omitempty"`
	Height int `json:"height,omitempty"`
	Width  int `json:"width,omitempty"`

	Steps    int     `json:"steps,omitempty"`
	Guidance float32 `json:"guidance,omitempty"`
	Seed     int64   `json:"seed,omitempty"`

	// Stream controls per-step progress messages. Defaults to true.
	Stream *bool `json:"stream,omitempty"`
}

// GenerateResponse is one NDJSON line of a generate stream. Intermediate
// lines report progress; the final line has Done set and carries the output
// frame paths.
type GenerateResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`

	Step       int `json:"step,omitempty"`
	TotalSteps int `json:"total_steps,omitempty"`

	Done          bool          `json:"done"`
	Frames        []string      `json:"frames,omitempty"`
	TotalDuration time.Duration `json:"total_duration,omitempty"`
}

// ModelInfo describes one variant in a list response.
type ModelInfo struct {
	Name       string `json:"name"`
	Family     string `json:"family"`
	HiddenSize int    `json:"hidden_size"`
	Layers     int    `json:"layers"`
}

// ListResponse enumerates the variants the server can run.
type ListResponse struct {
	Models []ModelInfo `json:"models"`
}
