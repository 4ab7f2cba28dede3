package access

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/awss/awss/internal/awsconfig"
	"github.com/awss/awss/internal/logging"
	"github.com/awss/awss/internal/metrics"
	"github.com/awss/awss/internal/storage"
)

// ProgressFunc reports probe completion while a resolution runs.
type ProgressFunc func(done, total int)

// Resolver probes every configured profile against every bucket and
// picks one profile per bucket.
type Resolver struct {
	store    Storage
	profiles []awsconfig.Profile
	limit    int
}

// NewResolver creates a Resolver over the configured profiles in their
// configured order. probeLimit bounds concurrent probes; values below
// one mean unbounded.
func NewResolver(store Storage, profiles []awsconfig.Profile, probeLimit int) *Resolver {
	if len(profiles) == 0 {
		profiles = []awsconfig.Profile{awsconfig.Default}
	}
	return &Resolver{store: store, profiles: profiles, limit: probeLimit}
}

type pairKey struct {
	bucket  string
	profile awsconfig.Profile
}

// candidate is one profile's standing for one bucket, carrying the
// full ranking key.
type candidate struct {
	profile    awsconfig.Profile
	result     ProbeResult
	listed     bool
	configRank int
}

// betterThan orders candidates by (access level, non-default profile,
// appeared in the original listing, earlier configured rank). The
// configured rank is unique, so the ordering is total.
func (c candidate) betterThan(other candidate) bool {
	if a, b := c.result.Level.Rank(), other.result.Level.Rank(); a != b {
		return a > b
	}
	if a, b := !c.profile.IsDefault(), !other.profile.IsDefault(); a != b {
		return a
	}
	if c.listed != other.listed {
		return c.listed
	}
	return c.configRank < other.configRank
}

// Resolve produces exactly one record per distinct bucket name in
// listings, in first-seen order. Every configured profile is probed
// against every bucket concurrently; a probe failure counts as NoView
// for that pair and never aborts the rest of the matrix.
func (r *Resolver) Resolve(ctx context.Context, listings []storage.BucketListing, progress ProgressFunc) []BucketRecord {
	start := time.Now()

	var buckets []string
	listedBy := make(map[string]map[awsconfig.Profile]bool)
	for _, listing := range listings {
		if _, seen := listedBy[listing.Name]; !seen {
			buckets = append(buckets, listing.Name)
			listedBy[listing.Name] = make(map[awsconfig.Profile]bool)
		}
		listedBy[listing.Name][listing.Profile] = true
	}

	total := len(buckets) * len(r.profiles)
	results := make(map[pairKey]ProbeResult, total)
	var mu sync.Mutex
	done := 0

	group, groupCtx := errgroup.WithContext(ctx)
	if r.limit > 0 {
		group.SetLimit(r.limit)
	}
	for _, bucket := range buckets {
		for _, profile := range r.profiles {
			group.Go(func() error {
				result, err := Probe(groupCtx, r.store, profile, bucket)
				recordProbe(result, err)
				if err != nil {
					// Re-auth already ran inside the storage call; a
					// surviving session error means this profile is
					// unusable for now.
					logging.Debug("probe failed",
						zap.String("bucket", bucket),
						zap.String("profile", profile.Label()),
						zap.Error(err))
					result = ProbeResult{Level: NoView}
				}
				mu.Lock()
				results[pairKey{bucket, profile}] = result
				done++
				current := done
				mu.Unlock()
				if progress != nil {
					progress(current, total)
				}
				return nil
			})
		}
	}
	group.Wait()

	records := make([]BucketRecord, 0, len(buckets))
	for _, bucket := range buckets {
		records = append(records, r.resolveBucket(bucket, listedBy[bucket], results))
	}

	metrics.RecordResolutionDuration(time.Since(start))
	logging.Info("access resolution complete",
		zap.Int("buckets", len(buckets)),
		zap.Int("probes", total),
		zap.Duration("elapsed", time.Since(start)))
	return records
}

func (r *Resolver) resolveBucket(bucket string, listed map[awsconfig.Profile]bool, results map[pairKey]ProbeResult) BucketRecord {
	candidates := make([]candidate, 0, len(r.profiles))
	for rank, profile := range r.profiles {
		result, ok := results[pairKey{bucket, profile}]
		if !ok {
			result = ProbeResult{Level: NoView}
		}
		candidates = append(candidates, candidate{
			profile:    profile,
			result:     result,
			listed:     listed[profile],
			configRank: rank,
		})
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.betterThan(best) {
			best = c
		}
	}
	if best.result.Level.Rank() > 0 {
		return BucketRecord{
			Name:    bucket,
			Profile: best.profile,
			Access:  best.result.Level,
			IsEmpty: best.result.Empty,
		}
	}

	// No profile can even list the bucket. Pin the record to the
	// best-ranked profile that originally listed it, so a later manual
	// login lands on a plausible owner; fall back to the overall best
	// only when nothing listed it.
	fallback := best
	found := false
	for _, c := range candidates {
		if !c.listed {
			continue
		}
		if !found || c.betterThan(fallback) {
			fallback = c
			found = true
		}
	}
	return BucketRecord{Name: bucket, Profile: fallback.profile, Access: NoView}
}
