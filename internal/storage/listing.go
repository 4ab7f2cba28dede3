package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/awss/awss/internal/awsconfig"
	"github.com/awss/awss/internal/metrics"
)

// List performs a delimiter-bounded listing of one prefix, following
// continuation tokens in order and merging all pages. Keys equal to the
// prefix itself or ending in "/" (empty-folder placeholders) are
// excluded from Objects but still count toward HasAny.
func (s *Service) List(ctx context.Context, profile awsconfig.Profile, bucket, prefix string) (ListingPage, error) {
	var page ListingPage
	err := s.do(ctx, profile, func(ctx context.Context, client API) error {
		page = ListingPage{}
		var continuation *string
		for {
			out, err := s.listPage(ctx, client, &s3.ListObjectsV2Input{
				Bucket:            aws.String(bucket),
				Prefix:            aws.String(prefix),
				Delimiter:         aws.String("/"),
				MaxKeys:           aws.Int32(listPageSize),
				ContinuationToken: continuation,
			})
			if err != nil {
				return err
			}
			for _, common := range out.CommonPrefixes {
				if value := aws.ToString(common.Prefix); value != "" {
					page.HasAny = true
					page.CommonPrefixes = append(page.CommonPrefixes, value)
				}
			}
			if len(out.Contents) > 0 {
				page.HasAny = true
			}
			for _, object := range out.Contents {
				key := aws.ToString(object.Key)
				if key == "" || strings.HasSuffix(key, "/") {
					continue
				}
				if prefix != "" && key == prefix {
					continue
				}
				page.Objects = append(page.Objects, ObjectEntry{
					Key:          key,
					Size:         aws.ToInt64(object.Size),
					LastModified: object.LastModified,
					StorageClass: string(object.StorageClass),
				})
			}
			if !aws.ToBool(out.IsTruncated) {
				return nil
			}
			continuation = out.NextContinuationToken
		}
	})
	return page, err
}

// ListPrefixes returns only the common prefixes under prefix, for lazy
// tree expansion.
func (s *Service) ListPrefixes(ctx context.Context, profile awsconfig.Profile, bucket, prefix string) ([]string, error) {
	var prefixes []string
	err := s.do(ctx, profile, func(ctx context.Context, client API) error {
		prefixes = prefixes[:0]
		var continuation *string
		for {
			out, err := s.listPage(ctx, client, &s3.ListObjectsV2Input{
				Bucket:            aws.String(bucket),
				Prefix:            aws.String(prefix),
				Delimiter:         aws.String("/"),
				MaxKeys:           aws.Int32(listPageSize),
				ContinuationToken: continuation,
			})
			if err != nil {
				return err
			}
			for _, common := range out.CommonPrefixes {
				if value := aws.ToString(common.Prefix); value != "" {
					prefixes = append(prefixes, value)
				}
			}
			if !aws.ToBool(out.IsTruncated) {
				return nil
			}
			continuation = out.NextContinuationToken
		}
	})
	return prefixes, err
}

// DeepScan walks every object under prefix without a delimiter,
// accumulating totals and the set of ancestor subdirectories. The scan
// stops mid-page once maxKeys objects have been counted; the result is
// then marked truncated and all totals are lower bounds.
func (s *Service) DeepScan(ctx context.Context, profile awsconfig.Profile, bucket, prefix string, maxKeys int) (DeepScanResult, error) {
	var result DeepScanResult
	err := s.do(ctx, profile, func(ctx context.Context, client API) error {
		base := normalizeBasePrefix(prefix)
		result = DeepScanResult{}
		subdirs := make(map[string]struct{})
		var continuation *string
		for {
			out, err := s.listPage(ctx, client, &s3.ListObjectsV2Input{
				Bucket:            aws.String(bucket),
				Prefix:            aws.String(base),
				MaxKeys:           aws.Int32(listPageSize),
				ContinuationToken: continuation,
			})
			if err != nil {
				return err
			}
			for _, object := range out.Contents {
				if maxKeys > 0 && result.ScannedCount >= maxKeys {
					result.Truncated = true
					break
				}
				key := aws.ToString(object.Key)
				if key == "" || strings.HasSuffix(key, "/") {
					continue
				}
				if base != "" && key == base {
					continue
				}
				result.FileCount++
				result.TotalSize += aws.ToInt64(object.Size)
				result.ScannedCount++
				if object.LastModified != nil {
					if result.LatestModified == nil || object.LastModified.After(*result.LatestModified) {
						modified := *object.LastModified
						result.LatestModified = &modified
					}
				}
				addAncestorDirs(subdirs, relativeKey(key, base))
			}
			if result.Truncated {
				metrics.RecordDeepScanTruncation()
				break
			}
			if !aws.ToBool(out.IsTruncated) {
				break
			}
			continuation = out.NextContinuationToken
		}
		result.SubdirCount = len(subdirs)
		return nil
	})
	return result, err
}

// ListRecursive enumerates every object under prefix, for prefix
// downloads.
func (s *Service) ListRecursive(ctx context.Context, profile awsconfig.Profile, bucket, prefix string) ([]ObjectEntry, error) {
	var objects []ObjectEntry
	err := s.do(ctx, profile, func(ctx context.Context, client API) error {
		base := normalizeBasePrefix(prefix)
		objects = objects[:0]
		var continuation *string
		for {
			out, err := s.listPage(ctx, client, &s3.ListObjectsV2Input{
				Bucket:            aws.String(bucket),
				Prefix:            aws.String(base),
				MaxKeys:           aws.Int32(listPageSize),
				ContinuationToken: continuation,
			})
			if err != nil {
				return err
			}
			for _, object := range out.Contents {
				key := aws.ToString(object.Key)
				if key == "" || strings.HasSuffix(key, "/") {
					continue
				}
				if base != "" && key == base {
					continue
				}
				objects = append(objects, ObjectEntry{
					Key:          key,
					Size:         aws.ToInt64(object.Size),
					LastModified: object.LastModified,
					StorageClass: string(object.StorageClass),
				})
			}
			if !aws.ToBool(out.IsTruncated) {
				return nil
			}
			continuation = out.NextContinuationToken
		}
	})
	return objects, err
}

// IsBucketEmpty reports whether the bucket has no objects at all.
func (s *Service) IsBucketEmpty(ctx context.Context, profile awsconfig.Profile, bucket string) (bool, error) {
	var empty bool
	err := s.do(ctx, profile, func(ctx context.Context, client API) error {
		start := time.Now()
		out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(bucket),
			MaxKeys: aws.Int32(1),
		})
		metrics.RecordS3Operation("ListObjectsV2", err, time.Since(start))
		if err != nil {
			return fmt.Errorf("list bucket %s: %w", bucket, err)
		}
		if len(out.Contents) > 0 {
			empty = false
			return nil
		}
		if out.KeyCount != nil {
			empty = *out.KeyCount == 0
			return nil
		}
		empty = true
		return nil
	})
	return empty, err
}

func (s *Service) listPage(ctx context.Context, client API, input *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
	start := time.Now()
	out, err := client.ListObjectsV2(ctx, input)
	metrics.RecordS3Operation("ListObjectsV2", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", aws.ToString(input.Bucket), aws.ToString(input.Prefix), err)
	}
	metrics.RecordListingPage()
	return out, nil
}

func normalizeBasePrefix(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		return prefix + "/"
	}
	return prefix
}

func relativeKey(key, base string) string {
	if base != "" && strings.HasPrefix(key, base) {
		return key[len(base):]
	}
	return key
}

// addAncestorDirs inserts every ancestor directory of the relative key,
// not only the immediate parent.
func addAncestorDirs(subdirs map[string]struct{}, relative string) {
	if !strings.Contains(relative, "/") {
		return
	}
	parts := strings.Split(relative, "/")
	path := ""
	for _, part := range parts[:len(parts)-1] {
		if part == "" {
			continue
		}
		path += part + "/"
		subdirs[path] = struct{}{}
	}
}
