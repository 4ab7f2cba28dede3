package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/awss/awss/internal/awsconfig"
	"github.com/awss/awss/internal/metrics"
)

const listPageSize = 1000

// RetryFunc wraps a storage operation with credential-recovery policy.
// The default passthrough is replaced with the auth coordinator's
// wrapper at wiring time.
type RetryFunc func(ctx context.Context, profile awsconfig.Profile, op func(context.Context) error) error

// Service issues storage calls through the per-profile client registry.
type Service struct {
	registry *Registry
	retry    RetryFunc
}

// NewService creates a Service. A nil retry runs operations directly.
func NewService(registry *Registry, retry RetryFunc) *Service {
	if retry == nil {
		retry = func(ctx context.Context, _ awsconfig.Profile, op func(context.Context) error) error {
			return op(ctx)
		}
	}
	return &Service{registry: registry, retry: retry}
}

func (s *Service) do(ctx context.Context, profile awsconfig.Profile, op func(context.Context, API) error) error {
	return s.retry(ctx, profile, func(ctx context.Context) error {
		client, err := s.registry.Client(ctx, profile)
		if err != nil {
			return err
		}
		return op(ctx, client)
	})
}

// ListBucketsAll lists buckets under every profile concurrently. Partial
// failures do not cancel siblings; they are aggregated into a
// *PartialError returned alongside the successful listings.
func (s *Service) ListBucketsAll(ctx context.Context, profiles []awsconfig.Profile) ([]BucketListing, *PartialError) {
	results := make([][]string, len(profiles))
	errs := make([]error, len(profiles))

	var group errgroup.Group
	for i, profile := range profiles {
		group.Go(func() error {
			results[i], errs[i] = s.listBuckets(ctx, profile)
			return nil
		})
	}
	group.Wait()

	var listings []BucketListing
	var partial *PartialError
	for i, profile := range profiles {
		if errs[i] != nil {
			if partial == nil {
				partial = &PartialError{}
			}
			partial.Failures = append(partial.Failures, ProfileError{Profile: profile, Err: errs[i]})
			continue
		}
		for _, name := range results[i] {
			listings = append(listings, BucketListing{Name: name, Profile: profile})
		}
	}
	return listings, partial
}

func (s *Service) listBuckets(ctx context.Context, profile awsconfig.Profile) ([]string, error) {
	var names []string
	err := s.do(ctx, profile, func(ctx context.Context, client API) error {
		start := time.Now()
		out, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
		metrics.RecordS3Operation("ListBuckets", err, time.Since(start))
		if err != nil {
			return fmt.Errorf("list buckets: %w", err)
		}
		names = names[:0]
		for _, bucket := range out.Buckets {
			if bucket.Name != nil {
				names = append(names, *bucket.Name)
			}
		}
		return nil
	})
	return names, err
}

// ListKeysSample returns up to maxKeys object keys under the bucket
// root, for access probing.
func (s *Service) ListKeysSample(ctx context.Context, profile awsconfig.Profile, bucket string, maxKeys int) ([]string, error) {
	var keys []string
	err := s.do(ctx, profile, func(ctx context.Context, client API) error {
		start := time.Now()
		out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(bucket),
			MaxKeys: aws.Int32(int32(maxKeys)),
		})
		metrics.RecordS3Operation("ListObjectsV2", err, time.Since(start))
		if err != nil {
			return err
		}
		keys = keys[:0]
		for _, object := range out.Contents {
			if object.Key != nil && *object.Key != "" {
				keys = append(keys, *object.Key)
			}
		}
		return nil
	})
	return keys, err
}

// ReadProbeByte attempts a one-byte ranged read of key, proving that
// the profile can download from the bucket.
func (s *Service) ReadProbeByte(ctx context.Context, profile awsconfig.Profile, bucket, key string) error {
	return s.do(ctx, profile, func(ctx context.Context, client API) error {
		start := time.Now()
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Range:  aws.String("bytes=0-0"),
		})
		metrics.RecordS3Operation("GetObject", err, time.Since(start))
		if err != nil {
			return err
		}
		defer out.Body.Close()
		buf := make([]byte, 1)
		io.ReadFull(out.Body, buf)
		return nil
	})
}

// ReadRange reads up to maxBytes starting at start. Total size and
// truncation are derived from the Content-Range header when present,
// else from Content-Length against the bytes actually returned.
func (s *Service) ReadRange(ctx context.Context, profile awsconfig.Profile, bucket, key string, start int64, maxBytes int) (RangeResult, error) {
	var result RangeResult
	err := s.do(ctx, profile, func(ctx context.Context, client API) error {
		began := time.Now()
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, start+int64(maxBytes)-1)),
		})
		metrics.RecordS3Operation("GetObject", err, time.Since(began))
		if err != nil {
			return fmt.Errorf("get object %s: %w", key, err)
		}
		defer out.Body.Close()

		data, err := io.ReadAll(io.LimitReader(out.Body, int64(maxBytes)))
		if err != nil {
			return fmt.Errorf("read object %s: %w", key, err)
		}

		result = RangeResult{Data: data}
		if total, ok := parseContentRangeTotal(aws.ToString(out.ContentRange)); ok {
			result.TotalSize = &total
			result.Truncated = start+int64(len(data)) < total
		} else if out.ContentLength != nil {
			total := *out.ContentLength
			result.TotalSize = &total
			result.Truncated = int64(len(data)) < total
		}
		return nil
	})
	return result, err
}

// Download streams the full object to a local path, creating parent
// directories as needed.
func (s *Service) Download(ctx context.Context, profile awsconfig.Profile, bucket, key, destination string) error {
	return s.do(ctx, profile, func(ctx context.Context, client API) error {
		began := time.Now()
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		metrics.RecordS3Operation("GetObject", err, time.Since(began))
		if err != nil {
			return fmt.Errorf("get object %s: %w", key, err)
		}
		defer out.Body.Close()

		if parent := filepath.Dir(destination); parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", parent, err)
			}
		}
		file, err := os.Create(destination)
		if err != nil {
			return fmt.Errorf("create %s: %w", destination, err)
		}
		written, err := io.Copy(file, out.Body)
		closeErr := file.Close()
		metrics.RecordDownloadBytes(written)
		if err != nil {
			return fmt.Errorf("write %s: %w", destination, err)
		}
		if closeErr != nil {
			return fmt.Errorf("close %s: %w", destination, closeErr)
		}
		return nil
	})
}

// parseContentRangeTotal extracts the total size from a
// "bytes start-end/total" header value.
func parseContentRangeTotal(contentRange string) (int64, bool) {
	if contentRange == "" {
		return 0, false
	}
	parts := strings.Split(contentRange, "/")
	if len(parts) != 2 {
		return 0, false
	}
	total, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}
