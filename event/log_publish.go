package event

import "time"

// LogEntryEvent mirrors a server log entry onto the portal so that dashboards
// can show recent activity without access to the log files.
type LogEntryEvent struct {
	// OccurredAt is when the entry was logged.
	OccurredAt time.Time `json:"occurred_at"`
	// Level is the level string like "info" or "warn".
	Level string `json:"level"`
	// LoggerName names the logger that produced the entry.
	LoggerName string `json:"logger_name"`
	// Message is the log message.
	Message string `json:"message"`
	// Fields are the structured fields attached to the entry.
	Fields map[string]interface{} `json:"fields"`
}
