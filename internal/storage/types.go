package storage

import (
	"strings"
	"time"

	"github.com/awss/awss/internal/awsconfig"
)

// ObjectEntry describes one object returned by a listing.
type ObjectEntry struct {
	Key          string
	Size         int64
	LastModified *time.Time
	StorageClass string
}

// ListingPage is the merged result of one delimiter-bounded listing,
// aggregated across all continuation-token pages. HasAny distinguishes
// an empty folder from a path that does not exist.
type ListingPage struct {
	CommonPrefixes []string
	Objects        []ObjectEntry
	HasAny         bool
}

// DeepScanResult accumulates a recursive scan under a prefix. When
// Truncated is set the counts are lower bounds, not exact totals.
type DeepScanResult struct {
	FileCount      int
	SubdirCount    int
	TotalSize      int64
	LatestModified *time.Time
	ScannedCount   int
	Truncated      bool
}

// RangeResult is one ranged read of an object. TotalSize is nil when
// the backend reported neither a content range nor a content length.
type RangeResult struct {
	Data      []byte
	TotalSize *int64
	Truncated bool
}

// BucketListing is one bucket name as seen by one profile's ListBuckets.
type BucketListing struct {
	Name    string
	Profile awsconfig.Profile
}

// ProfileError records a failure for a single profile inside a
// fan-out operation.
type ProfileError struct {
	Profile awsconfig.Profile
	Err     error
}

// PartialError aggregates per-profile failures of a fan-out operation
// whose surviving results are still usable.
type PartialError struct {
	Failures []ProfileError
}

func (e *PartialError) Error() string {
	labels := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		labels = append(labels, failure.Profile.Label())
	}
	return "some profiles failed: " + strings.Join(labels, ", ")
}

// Profiles returns the labels of the affected profiles.
func (e *PartialError) Profiles() []string {
	labels := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		labels = append(labels, failure.Profile.Label())
	}
	return labels
}
