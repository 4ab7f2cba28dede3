package access

import (
	"context"

	"github.com/awss/awss/internal/auth"
	"github.com/awss/awss/internal/awsconfig"
	"github.com/awss/awss/internal/metrics"
)

const (
	probeListKeys = 10
	probeReadKeys = 5
)

// Storage is the slice of the storage service a probe needs.
type Storage interface {
	ListKeysSample(ctx context.Context, profile awsconfig.Profile, bucket string, maxKeys int) ([]string, error)
	ReadProbeByte(ctx context.Context, profile awsconfig.Profile, bucket, key string) error
}

// ProbeResult is one observed bucket/profile capability. Empty is only
// meaningful when Level is Good.
type ProbeResult struct {
	Level Level
	Empty bool
}

// Probe determines the access level one profile has for one bucket. It
// lists a small sample of keys, then proves download capability with a
// one-byte ranged read of up to probeReadKeys of them. An expired
// session propagates as an error so the caller can re-authenticate; any
// other failure means the profile cannot view the bucket.
func Probe(ctx context.Context, store Storage, profile awsconfig.Profile, bucket string) (ProbeResult, error) {
	keys, err := store.ListKeysSample(ctx, profile, bucket, probeListKeys)
	if err != nil {
		if auth.IsSessionExpired(err) {
			return ProbeResult{Level: Unknown}, err
		}
		return ProbeResult{Level: NoView}, nil
	}
	if len(keys) == 0 {
		// Listing an empty bucket succeeded, so there is nothing a
		// download could be denied on.
		return ProbeResult{Level: Good, Empty: true}, nil
	}
	sample := keys
	if len(sample) > probeReadKeys {
		sample = sample[:probeReadKeys]
	}
	for _, key := range sample {
		err := store.ReadProbeByte(ctx, profile, bucket, key)
		if err == nil {
			return ProbeResult{Level: Good}, nil
		}
		if auth.IsSessionExpired(err) {
			return ProbeResult{Level: Unknown}, err
		}
	}
	return ProbeResult{Level: NoDownload}, nil
}

func recordProbe(result ProbeResult, err error) {
	if err != nil {
		metrics.RecordAccessProbe("error")
		return
	}
	metrics.RecordAccessProbe(result.Level.String())
}
