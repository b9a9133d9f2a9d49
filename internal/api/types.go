package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Entry describes a schedulable row in a transport-friendly format.
type Entry struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	State       string `json:"state"`
	Ready       bool   `json:"ready"`
	LockedUntil string `json:"lockedUntil,omitempty"`
	Changed     string `json:"changed,omitempty"`
	Attempts    int    `json:"attempts"`
	LastError   string `json:"lastError,omitempty"`
}

// KindSummary aggregates scheduling counts for one entity kind.
type KindSummary struct {
	Kind     string         `json:"kind"`
	Total    int            `json:"total"`
	Ready    int            `json:"ready"`
	Locked   int            `json:"locked"`
	Terminal int            `json:"terminal"`
	Errored  int            `json:"errored"`
	States   map[string]int `json:"states"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool          `json:"running"`
	PID          int           `json:"pid"`
	Domain       string        `json:"domain"`
	DatabasePath string        `json:"databasePath"`
	LockFilePath string        `json:"lockFilePath,omitempty"`
	Kinds        []KindSummary `json:"kinds"`
}

// QueueListResponse wraps scheduling entries for API responses.
type QueueListResponse struct {
	Entries []Entry `json:"entries"`
}

// TimelineEvent is one resolved entry on a local identity's timeline.
type TimelineEvent struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	PostID    int64  `json:"postId"`
	ObjectURI string `json:"objectUri,omitempty"`
	Content   string `json:"content,omitempty"`
	Author    string `json:"author,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// TimelineResponse wraps timeline events for one identity.
type TimelineResponse struct {
	Identity string          `json:"identity"`
	Events   []TimelineEvent `json:"events"`
}

// RetryResponse reports how many parked entities were resurrected.
type RetryResponse struct {
	Resurrected int64 `json:"resurrected"`
}

// ClearResponse reports how many abandoned fan-outs were removed.
type ClearResponse struct {
	Removed int64 `json:"removed"`
}

// ErrorResponse is the JSON body returned on API failures.
type ErrorResponse struct {
	Error string `json:"error"`
}
