package topichub

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Prefixes of the identifiers the engine mints.
const (
	msgIDPrefix  = "thm"
	subKeyPrefix = "thk"
)

// NewCID returns a new correlation id.
func NewCID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewMsgID returns a new publish message id.
func NewMsgID() string {
	return msgIDPrefix + NewCID()
}

// NewSubKey returns a new sub-key for an endpoint of the given type.
// The external client id, if any, becomes part of the key for traceability.
func NewSubKey(endpointType, extClientID string) string {
	if extClientID != "" {
		return fmt.Sprintf("%s.%s.%s.%s", subKeyPrefix, endpointType, extClientID, NewCID()[:12])
	}
	return fmt.Sprintf("%s.%s.%s", subKeyPrefix, endpointType, NewCID()[:12])
}
