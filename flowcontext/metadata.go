package flowcontext

import "time"

// Metadata holds the small, fixed set of identifying fields every request
// carries, independent of the typed store.
type Metadata struct {
	RequestID     string
	UserID        string
	CorrelationID string
	Timestamp     time.Time
	Tags          map[string]string
}

// Tag returns the value of a tag and whether it was present.
func (m Metadata) Tag(key string) (string, bool) {
	if m.Tags == nil {
		return "", false
	}
	v, ok := m.Tags[key]
	return v, ok
}
