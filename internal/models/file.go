// Package models defines the domain types shared by the cleaner, the
// manifest and the outer surfaces.
package models

import "time"

// Kind classifies an exported file by how it is carried over.
type Kind string

const (
	KindDocument Kind = "document" // .md, links rewritten
	KindTable    Kind = "table"    // .csv, converted to a Markdown table
	KindAsset    Kind = "asset"    // anything else, copied byte for byte
)

// Status is the outcome of processing one file.
type Status string

const (
	StatusWritten Status = "written"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// FileMetadata is a lightweight representation returned by tree listings.
type FileMetadata struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileRecord is what a run records about one source file.
type FileRecord struct {
	Source   string   `json:"source"`
	Dest     string   `json:"dest"`
	Kind     Kind     `json:"kind"`
	Checksum string   `json:"checksum,omitempty"`
	Status   Status   `json:"status"`
	Error    string   `json:"error,omitempty"`
	Title    string   `json:"title,omitempty"`
	Links    []string `json:"links,omitempty"`
}

// Collision describes several sources that clean to the same destination.
// Winner is the source that was written; Losers were skipped.
type Collision struct {
	Dest   string   `json:"dest"`
	Winner string   `json:"winner"`
	Losers []string `json:"losers"`
}

// Run is one pass of the cleaner over an export.
type Run struct {
	ID         string     `json:"id"`
	SourceRoot string     `json:"source_root"`
	DestRoot   string     `json:"dest_root"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Written    int        `json:"written"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
}

// DanglingLink is a rewritten reference whose target was not produced by
// the same run.
type DanglingLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
}
