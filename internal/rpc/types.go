package rpc

import (
	"time"

	"github.com/jcdickinson/ferrisfind/internal/itemtype"
	"github.com/jcdickinson/ferrisfind/internal/query"
)

// LoadRequest is the request body for POST /load.
type LoadRequest struct {
	Paths []string `json:"paths" yaml:"paths"`
}

// LoadResponse collects the per-file results of a load.
type LoadResponse struct {
	Results []SourceResult `json:"results" yaml:"results"`
}

type SourceResult struct {
	Name   string   `json:"name" yaml:"name"`
	Path   string   `json:"path" yaml:"path"`
	Crates []string `json:"crates,omitempty" yaml:"crates,omitempty"`
	Items  int      `json:"items" yaml:"items"`
	Error  string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// ProgressLine is a single line of NDJSON streamed from the load endpoint.
type ProgressLine struct {
	Type    string        `json:"type" yaml:"type"` // "progress" or "result"
	Message string        `json:"message,omitempty" yaml:"message,omitempty"`
	Result  *SourceResult `json:"result,omitempty" yaml:"result,omitempty"`
}

// UnloadRequest is the request body for POST /unload.
type UnloadRequest struct {
	Names []string `json:"names" yaml:"names"`
}

type UnloadResponse struct {
	Removed []string `json:"removed" yaml:"removed"`
}

// SearchRequest is the request body for POST /search.
type SearchRequest struct {
	Query        string `json:"query" yaml:"query"`
	Crate        string `json:"crate,omitempty" yaml:"crate,omitempty"`
	CurrentCrate string `json:"current_crate,omitempty" yaml:"current_crate,omitempty"`
}

// SearchResponse holds the three ranked result categories and the parsed
// query echo.
type SearchResponse struct {
	InArgs   []ItemResult       `json:"in_args" yaml:"in_args"`
	Returned []ItemResult       `json:"returned" yaml:"returned"`
	Others   []ItemResult       `json:"others" yaml:"others"`
	Query    *query.ParsedQuery `json:"query" yaml:"query"`
}

type ItemResult struct {
	ID          int               `json:"id" yaml:"id"`
	Crate       string            `json:"crate" yaml:"crate"`
	Kind        itemtype.ItemType `json:"kind" yaml:"kind"`
	Name        string            `json:"name" yaml:"name"`
	Path        string            `json:"path" yaml:"path"`
	Parent      string            `json:"parent,omitempty" yaml:"parent,omitempty"`
	DisplayPath string            `json:"display_path" yaml:"display_path"`
	Href        string            `json:"href" yaml:"href"`
	Desc        string            `json:"desc,omitempty" yaml:"desc,omitempty"`
	Signature   string            `json:"signature,omitempty" yaml:"signature,omitempty"`
	Distance    float64           `json:"distance" yaml:"distance"`
	IsAlias     bool              `json:"is_alias,omitempty" yaml:"is_alias,omitempty"`
	Alias       string            `json:"alias,omitempty" yaml:"alias,omitempty"`
	OriginalID  *int              `json:"original_id,omitempty" yaml:"original_id,omitempty"`
}

// ParseRequest is the request body for POST /parse.
type ParseRequest struct {
	Query string `json:"query" yaml:"query"`
}

// ParseResponse echoes a parsed query with suggestions for an unknown type
// filter.
type ParseResponse struct {
	Query       *query.ParsedQuery `json:"query" yaml:"query"`
	Suggestions []string           `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
}

// PruneResponse reports how many unreferenced snapshots were deleted.
type PruneResponse struct {
	Removed int `json:"removed" yaml:"removed"`
}

// StatusResponse is the response body for GET /status.
type StatusResponse struct {
	Sources []SourceStatus `json:"sources" yaml:"sources"`
	Items   int            `json:"items" yaml:"items"`
}

type SourceStatus struct {
	Name        string        `json:"name" yaml:"name"`
	Path        string        `json:"path" yaml:"path"`
	ContentHash string        `json:"content_hash" yaml:"content_hash"`
	LoadedAt    time.Time     `json:"loaded_at" yaml:"loaded_at"`
	Crates      []CrateStatus `json:"crates" yaml:"crates"`
}

type CrateStatus struct {
	Name  string `json:"name" yaml:"name"`
	Items int    `json:"items" yaml:"items"`
}
