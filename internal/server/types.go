// Package server provides the HTTP server for the Reelcard API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/reelcard-api/internal/filtergraph"
	"github.com/maauso/reelcard-api/internal/motion"
	"github.com/maauso/reelcard-api/internal/sysinfo"
	"github.com/maauso/reelcard-api/internal/typography"
)

// CreateImageRequest is the HTTP request body for rendering a single card.
type CreateImageRequest struct {
	// Source is the background image reference (https://, s3:// or a local path).
	Source string `json:"source" validate:"required,max=2048"`
	// Title is the headline drawn over the image.
	Title string `json:"title"`
	// Attribution is the smaller byline under the title.
	Attribution string `json:"attribution" validate:"max=200"`
	// AttributionURL is encoded in the optional QR badge.
	AttributionURL string `json:"attribution_url,omitempty" validate:"omitempty,url,max=2048"`
	// Width is the canvas width; zero uses the profile default.
	Width int `json:"width,omitempty" validate:"omitempty,min=160,max=4096"`
	// Height is the canvas height; zero uses the profile default.
	Height int `json:"height,omitempty" validate:"omitempty,min=160,max=4096"`
	// MaxLines caps the title; zero uses the profile default.
	MaxLines int `json:"max_lines,omitempty" validate:"omitempty,min=1,max=20"`
}

// PublishedImageResponse is returned by POST /v1/images?publish=true.
type PublishedImageResponse struct {
	URL    string `json:"url"`
	Key    string `json:"key"`
	Cached bool   `json:"cached"`
}

// SlideRequest is one slide of a video request.
type SlideRequest struct {
	// Source is the image or video clip reference.
	Source string `json:"source" validate:"required,max=2048"`
	// Duration is how long the slide stays on screen, in seconds.
	Duration float64 `json:"duration" validate:"required,gt=0"`
	// Caption is optional text drawn in the lower band.
	Caption string `json:"caption,omitempty"`
	// MaxLines caps the caption; zero uses the profile default.
	MaxLines int `json:"max_lines,omitempty" validate:"omitempty,min=1,max=20"`
}

// CreateVideoRequest is the HTTP request body for creating a reel job.
type CreateVideoRequest struct {
	Slides []SlideRequest `json:"slides" validate:"required,min=1,dive"`
	// Transition between slides; empty means the default crossfade.
	Transition string `json:"transition,omitempty" validate:"max=32"`
	// Width is the output width; zero uses the profile default.
	Width int `json:"width,omitempty" validate:"omitempty,min=160,max=4096"`
	// Height is the output height; zero uses the profile default.
	Height int `json:"height,omitempty" validate:"omitempty,min=160,max=4096"`
}

// CreateVideoResponse is the HTTP response after creating a job.
type CreateVideoResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// VideoResponse is the HTTP response for getting job details.
type VideoResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	// Error and Code are set when the job failed or timed out.
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
	// URL and Duration are set once the reel is published.
	URL       string    `json:"url,omitempty"`
	Duration  float64   `json:"duration,omitempty"`
	Slides    int       `json:"slides"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CaptionPreviewResponse is the resolved placement of one caption layer.
type CaptionPreviewResponse struct {
	Slide     int               `json:"slide"`
	X         int               `json:"x"`
	Y         int               `json:"y"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	FontSize  int               `json:"font_size"`
	Lines     []typography.Line `json:"lines"`
	Truncated bool              `json:"truncated"`
	Markup    string            `json:"markup"`
}

// PreviewResponse describes the pipeline a video request would run.
type PreviewResponse struct {
	FilterComplex string                   `json:"filter_complex"`
	Args          []string                 `json:"args"`
	Stages        []filtergraph.Stage      `json:"stages"`
	Offsets       []float64                `json:"offsets"`
	TotalDuration float64                  `json:"total_duration"`
	Clamped       []int                    `json:"clamped,omitempty"`
	Trajectories  []motion.Trajectory      `json:"trajectories"`
	Captions      []CaptionPreviewResponse `json:"captions"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
	// RequestID correlates the response with server logs.
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// System is a snapshot of host load, when available.
	System *sysinfo.Snapshot `json:"system,omitempty"`
}
