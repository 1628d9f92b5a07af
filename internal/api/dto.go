package api

import (
	"github.com/starford/notionclean/internal/cleaner"
	"github.com/starford/notionclean/internal/cleanservice"
	"github.com/starford/notionclean/internal/models"
)

// maxNormalizePaths bounds a single normalize request.
const maxNormalizePaths = 10000

// NormalizeRequest is the request body for POST /normalize.
type NormalizeRequest struct {
	Paths []string `json:"paths" example:"My Page 834fa2b1.md" validate:"required"`
}

// NormalizeResponse lists the cleaned form of every requested path.
type NormalizeResponse struct {
	Paths []PathMapping `json:"paths" validate:"required"`
}

// RewriteRequest is the request body for POST /rewrite.
type RewriteRequest struct {
	Text string `json:"text" example:"See [notes](My%20Notes%2012ab.md)"`
}

// RewriteResponse carries the rewritten text.
type RewriteResponse struct {
	Text string `json:"text" example:"See [notes](My-Notes.md)" validate:"required"`
}

// DanglingResponse lists the dangling links of a run.
type DanglingResponse struct {
	RunID    string                `json:"run_id" validate:"required"`
	Dangling []models.DanglingLink `json:"dangling" validate:"required"`
}

// PathMapping pairs an exported path with its cleaned form (aliased from the domain layer).
type PathMapping = cleanservice.PathMapping

// RunReport is the full report of a run (aliased from the domain layer).
type RunReport = cleanservice.Report

// RunSummary is the outcome of a run (aliased from the domain layer).
type RunSummary = cleaner.Summary
