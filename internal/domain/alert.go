package domain

import "time"

// AlertLevel is the severity of a dispatched alert.
type AlertLevel string

const (
	LevelInfo     AlertLevel = "INFO"
	LevelWarn     AlertLevel = "WARN"
	LevelCritical AlertLevel = "CRITICAL"
)

// Alert is a single outbound notification for a Classified Event. At most
// one Alert per DedupKey is dispatched within the configured dedup window.
type Alert struct {
	EventID  string
	Level    AlertLevel
	IssuedAt time.Time
	Payload  map[string]any
	DedupKey string
}
