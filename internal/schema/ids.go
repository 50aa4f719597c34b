package schema

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProvisionalPrefix marks server ids that were minted locally and have not been
// confirmed by the remote.
const ProvisionalPrefix = "tmp-"

// RemoteOrderPrefix prefixes the local key of orders downloaded from the remote.
const RemoteOrderPrefix = "srv-"

// TimeLayout is a fixed-width UTC layout, so stored index values sort
// lexicographically in time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// NewLocalID returns a time-ordered local id (UUIDv7). Ids minted by the
// structured store and the fallback cache never collide.
func NewLocalID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewProvisionalID returns a provisional server id for an unconfirmed record.
func NewProvisionalID() string {
	return ProvisionalPrefix + uuid.NewString()
}

// IsProvisionalID reports whether id was minted locally.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// RemoteOrderKey returns the local cache key for an order known to the remote.
func RemoteOrderKey(serverID string) string {
	return RemoteOrderPrefix + serverID
}

// FormatTime formats t with TimeLayout. The zero time formats as "".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}
