package tool

import (
	"github.com/google/uuid"
)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateTraceID is used for work that does not originate from an HTTP request.
func GenerateTraceID() string {
	return uuid.New().String()
}
