package models

import "time"

// Timestamps collects the candidate mutation-time sources of a record.
// Local records carry epoch-ms values; cloud records carry an ISO-8601
// updated_at string. ExtractTimestamp in the conflict package picks the
// effective value in priority order.
type Timestamps struct {
	UpdatedAt int64  // explicit updatedAt field, epoch ms, 0 when absent
	Timestamp int64  // logical mutation time, epoch ms, 0 when absent
	RemoteISO string // cloud updated_at string, "" when absent
}

// ToISO renders an epoch-ms timestamp in the cloud wire format.
func ToISO(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

// ParseISO parses a cloud updated_at string into epoch ms.
// Returns 0 for empty or malformed input.
func ParseISO(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return 0
		}
	}
	return t.UnixMilli()
}

// NowMillis returns the current time as epoch ms.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
