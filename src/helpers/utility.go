package helpers

import (
	"time"

	"github.com/google/uuid"
)

// GenerateUUID returns a new random record key.
func GenerateUUID() string {
	return uuid.New().String()
}

// Today formats t as the calendar date used by date-indexed records.
func Today(t time.Time) string {
	return t.Format("2006-01-02")
}
