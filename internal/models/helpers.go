package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateID returns prefix followed by a random UUID. Order ids are public
// lookup keys, so all 122 random bits are kept.
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}

// GetCurrentTime returns the current time in UTC at microsecond precision,
// matching what Postgres stores.
func GetCurrentTime() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// ShortRef returns the last six characters of id in upper case
func ShortRef(id string) string {
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return strings.ToUpper(id)
}
