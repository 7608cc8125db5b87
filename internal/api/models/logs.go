package models

// LogEntry is one buffered log record.
type LogEntry struct {
	Timestamp  string         `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Record time"`
	Level      string         `json:"level" example:"INFO" doc:"Log level"`
	Module     string         `json:"module" example:"cameras" doc:"Emitting module"`
	CameraID   string         `json:"camera_id,omitempty" example:"front" doc:"Camera the entry is about, if any"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

type LogListResponse struct {
	Body struct {
		Entries []LogEntry `json:"entries" doc:"Most recent entries, oldest first"`
		Count   int        `json:"count" doc:"Number of entries"`
	}
}

// LogLevelRequest changes the level of one module.
type LogLevelRequest struct {
	Body struct {
		Module string `json:"module" minLength:"1" example:"cameras" doc:"Module name"`
		Level  string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}
