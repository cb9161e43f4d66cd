package models

// SessionInfo is one capture run as recorded in the session catalog.
type SessionInfo struct {
	Stem       string `json:"stem"`
	Basename   string `json:"basename"`
	CreatedAt  int64  `json:"created_at"` // epoch seconds
	VideoPath  string `json:"video_path"`
	LogPath    string `json:"log_path"`
	EventsPath string `json:"events_path"`
	Status     string `json:"status"` // recording|complete|incomplete
	VideoBytes int64  `json:"video_bytes"`
}

// Session catalog statuses.
const (
	SessionRecording  = "recording"
	SessionComplete   = "complete"
	SessionIncomplete = "incomplete"
)
