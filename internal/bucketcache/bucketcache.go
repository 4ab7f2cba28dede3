// Package bucketcache persists resolved bucket records between runs so
// the interactive browser can start without re-probing every bucket.
package bucketcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/awss/awss/internal/access"
	"github.com/awss/awss/internal/awsconfig"
	"github.com/awss/awss/internal/logging"
	"github.com/awss/awss/internal/metrics"
)

// FingerprintFunc returns the current credential-file fingerprint, or
// "" when no credential file is readable.
type FingerprintFunc func() string

// Cache reads and writes the resolved-bucket snapshot at a fixed path.
// A snapshot is valid only while the credential files it was built from
// are unchanged and, unless the caller opts out, while it is younger
// than the TTL. A TTL of zero or below disables the age check entirely.
type Cache struct {
	path        string
	ttl         time.Duration
	fingerprint FingerprintFunc
}

// New creates a Cache at path.
func New(path string, ttl time.Duration, fingerprint FingerprintFunc) *Cache {
	if fingerprint == nil {
		fingerprint = func() string { return "" }
	}
	return &Cache{path: path, ttl: ttl, fingerprint: fingerprint}
}

// Path returns the snapshot file location.
func (c *Cache) Path() string { return c.path }

type envelope struct {
	SavedAt   string  `json:"saved_at"`
	ConfigSHA *string `json:"aws_config_sha256"`
	Buckets   []row   `json:"buckets"`
}

type row struct {
	Name    string  `json:"name"`
	Profile *string `json:"profile"`
	Access  string  `json:"access"`
	IsEmpty bool    `json:"is_empty"`
}

// Load returns the cached records if the snapshot is still valid. The
// boolean is false on any miss: missing file, unreadable JSON, changed
// or undefined credential fingerprint, or expired TTL.
func (c *Cache) Load(now time.Time) ([]access.BucketRecord, bool) {
	return c.load(now, false)
}

// LoadIgnoreTTL is Load without the age check. The fingerprint check
// still applies: a snapshot built from different credentials is never
// served, however fresh.
func (c *Cache) LoadIgnoreTTL(now time.Time) ([]access.BucketRecord, bool) {
	return c.load(now, true)
}

func (c *Cache) load(now time.Time, ignoreTTL bool) ([]access.BucketRecord, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.Warn("bucket cache unreadable", zap.String("path", c.path), zap.Error(err))
		}
		metrics.RecordBucketCacheLoad("miss")
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logging.Warn("bucket cache corrupt", zap.String("path", c.path), zap.Error(err))
		metrics.RecordBucketCacheLoad("corrupt")
		return nil, false
	}

	// An undefined live fingerprint (no readable credential files) gives
	// the snapshot nothing to be validated against, so it is never served.
	current := c.fingerprint()
	cached := ""
	if env.ConfigSHA != nil {
		cached = *env.ConfigSHA
	}
	if current == "" || cached != current {
		logging.Info("bucket cache invalidated, credential files changed",
			zap.String("path", c.path))
		metrics.RecordBucketCacheLoad("fingerprint_mismatch")
		return nil, false
	}

	savedAt, err := time.Parse(time.RFC3339, env.SavedAt)
	if err != nil {
		logging.Warn("bucket cache has invalid timestamp",
			zap.String("saved_at", env.SavedAt), zap.Error(err))
		metrics.RecordBucketCacheLoad("corrupt")
		return nil, false
	}
	if !ignoreTTL && c.ttl > 0 && now.Sub(savedAt) > c.ttl {
		metrics.RecordBucketCacheLoad("stale")
		return nil, false
	}

	records := make([]access.BucketRecord, 0, len(env.Buckets))
	for _, r := range env.Buckets {
		profile := awsconfig.Default
		if r.Profile != nil {
			profile = awsconfig.Profile(*r.Profile)
		}
		records = append(records, access.BucketRecord{
			Name:    r.Name,
			Profile: profile,
			Access:  access.ParseLevel(r.Access),
			IsEmpty: r.IsEmpty,
		})
	}
	metrics.RecordBucketCacheLoad("hit")
	return records, true
}

// Save writes a new snapshot atomically: the envelope goes to a
// temporary file in the same directory and replaces the old snapshot
// with a rename. Records are deduplicated by bucket name (last one
// wins) and stored sorted by name.
func (c *Cache) Save(records []access.BucketRecord, now time.Time) error {
	byName := make(map[string]access.BucketRecord, len(records))
	names := make([]string, 0, len(records))
	for _, record := range records {
		if _, seen := byName[record.Name]; !seen {
			names = append(names, record.Name)
		}
		byName[record.Name] = record
	}
	sort.Strings(names)

	env := envelope{
		SavedAt: now.UTC().Format(time.RFC3339),
		Buckets: make([]row, 0, len(names)),
	}
	if sha := c.fingerprint(); sha != "" {
		env.ConfigSHA = &sha
	}
	for _, name := range names {
		record := byName[name]
		r := row{
			Name:    record.Name,
			Access:  record.Access.String(),
			IsEmpty: record.IsEmpty,
		}
		if !record.Profile.IsDefault() {
			name := string(record.Profile)
			r.Profile = &name
		}
		env.Buckets = append(env.Buckets, r)
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bucket cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".bucket-cache-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write bucket cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close bucket cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace bucket cache: %w", err)
	}
	logging.Debug("bucket cache saved",
		zap.String("path", c.path), zap.Int("buckets", len(records)))
	return nil
}
