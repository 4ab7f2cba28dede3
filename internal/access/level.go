// Package access probes bucket/profile pairs and resolves exactly one
// usable profile per bucket.
package access

import (
	"encoding/json"
	"strings"

	"github.com/awss/awss/internal/awsconfig"
)

// Level is the ranked capability a profile demonstrated for a bucket.
// Unknown ranks the same as NoView.
type Level int

const (
	Unknown Level = iota
	NoView
	NoDownload
	Good
)

// Rank returns the comparable strength of the level; Unknown collapses
// to NoView.
func (l Level) Rank() int {
	switch l {
	case NoDownload:
		return 1
	case Good:
		return 2
	default:
		return 0
	}
}

func (l Level) String() string {
	switch l {
	case NoView:
		return "no_view"
	case NoDownload:
		return "no_download"
	case Good:
		return "good"
	default:
		return "unknown"
	}
}

// ParseLevel normalizes a persisted level string; anything
// unrecognized becomes Unknown.
func ParseLevel(value string) Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "no_view":
		return NoView
	case "no_download":
		return NoDownload
	case "good":
		return Good
	default:
		return Unknown
	}
}

// MarshalJSON encodes the level as its string form.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a string form, tolerating unknown values.
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = ParseLevel(s)
	return nil
}

// BucketRecord is the resolved view of one bucket: the winning profile
// and the access it demonstrated.
type BucketRecord struct {
	Name    string
	Profile awsconfig.Profile
	Access  Level
	IsEmpty bool
}
