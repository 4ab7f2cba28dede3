package browser

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/awss/awss/internal/awsconfig"
)

// Context identifies a view: the bucket list (zero value), a bucket
// root (empty Prefix), or a folder. Prefixes always end in "/".
type Context struct {
	Profile awsconfig.Profile
	Bucket  string
	Prefix  string
}

// IsBucketList reports whether the context is the top-level bucket list.
func (c Context) IsBucketList() bool { return c.Bucket == "" }

// String renders the context as an s3:// path.
func (c Context) String() string {
	if c.IsBucketList() {
		return "s3://"
	}
	return "s3://" + c.Bucket + "/" + c.Prefix
}

// ParsePath parses "s3://bucket/a/b" or "bucket/a/b" into a bucket name
// and a normalized prefix (trailing slash, empty for the bucket root).
func ParsePath(raw string) (bucket, prefix string, err error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "s3://")
	trimmed = strings.TrimLeft(trimmed, "/")
	if trimmed == "" {
		return "", "", fmt.Errorf("empty path %q", raw)
	}
	bucket, prefix, _ = strings.Cut(trimmed, "/")
	prefix = strings.TrimLeft(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return bucket, prefix, nil
}

// ParentPrefix returns the prefix one level up, or "" at the bucket
// root.
func ParentPrefix(prefix string) string {
	trimmed := strings.TrimSuffix(prefix, "/")
	if trimmed == "" {
		return ""
	}
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return ""
	}
	return trimmed[:idx+1]
}

// DisplaySegment returns the last path segment of a prefix or key, for
// row and tree labels.
func DisplaySegment(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// FormatSize renders a byte count for display.
func FormatSize(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}
