package core

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID returns a random identifier for a recurring task.
func NewID() string {
	return uuid.New().String()
}

// InstanceID derives a stable instance identifier from the parent task ID
// and the instance's sequence number.
func InstanceID(taskID string, seq int) string {
	return fmt.Sprintf("%s-%d", taskID, seq)
}
