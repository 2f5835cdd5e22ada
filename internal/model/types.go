package model

import "time"

// ErrorKind classifies a decode failure for the catalog.
type ErrorKind string

const (
	ErrorKindInvalidReplay        ErrorKind = "invalid_replay"
	ErrorKindUnknownFormatVersion ErrorKind = "unknown_format_version"
	ErrorKindUnexpectedEnd        ErrorKind = "unexpected_end_of_data"
	ErrorKindUnknownExtension     ErrorKind = "unknown_extension"
	ErrorKindIO                   ErrorKind = "io"
	ErrorKindOther                ErrorKind = "error"
)

// ReplaySummary is one indexed replay file.
type ReplaySummary struct {
	ReplayID      string `json:"replay_id"`
	Path          string `json:"path"`
	Format        string `json:"format"`
	ContentSHA256 string `json:"content_sha256"`
	SizeBytes     int64  `json:"size_bytes"`
	Level         string `json:"level"`
	Mode          string `json:"mode"`
	Rows          int    `json:"rows"`
	Cols          int    `json:"cols"`
	MineCount     int    `json:"mine_count"`
	EventCount    int    `json:"event_count"`
	// Outcome is the terminate event's "how", empty when the format has none.
	Outcome          string            `json:"outcome,omitempty"`
	BestToken        string            `json:"best_token,omitempty"`
	BoardGeneratedAt *time.Time        `json:"board_generated_at,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	IndexedAt        time.Time         `json:"indexed_at"`
}

type DecodeFailure struct {
	Path      string    `json:"path"`
	ErrorKind ErrorKind `json:"error_kind"`
	Message   string    `json:"message"`
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
}

// ReplayFilter narrows ListReplays. Zero values match everything; Limit <= 0
// means no limit.
type ReplayFilter struct {
	Format string
	Level  string
	Limit  int
}
