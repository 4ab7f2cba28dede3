// Package storage is the typed adapter over the S3 backend: one lazily
// created client per credential profile, plus the list/get/download
// operations the rest of the browser calls through.
package storage

import (
	"context"
	"fmt"
	"sync"

	awsconf "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/awss/awss/internal/awsconfig"
)

// API is the subset of the S3 client the browser consumes. Tests fake
// this interface instead of the full SDK client.
type API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Factory builds an API for one profile.
type Factory func(ctx context.Context, profile awsconfig.Profile, region string) (API, error)

// Registry creates and caches one storage client per profile for the
// lifetime of the process.
type Registry struct {
	mu      sync.Mutex
	region  string
	factory Factory
	clients map[awsconfig.Profile]API
}

// NewRegistry creates a Registry. An empty region defers to each
// profile's configured region.
func NewRegistry(region string) *Registry {
	return &Registry{
		region:  region,
		factory: defaultFactory,
		clients: make(map[awsconfig.Profile]API),
	}
}

// NewRegistryWithFactory creates a Registry with a custom client
// factory, for tests.
func NewRegistryWithFactory(region string, factory Factory) *Registry {
	return &Registry{
		region:  region,
		factory: factory,
		clients: make(map[awsconfig.Profile]API),
	}
}

// Client returns the cached client for profile, creating it on first use.
func (r *Registry) Client(ctx context.Context, profile awsconfig.Profile) (API, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[profile]; ok {
		return client, nil
	}
	client, err := r.factory(ctx, profile, r.region)
	if err != nil {
		return nil, fmt.Errorf("create client for profile %s: %w", profile.Label(), err)
	}
	r.clients[profile] = client
	return client, nil
}

func defaultFactory(ctx context.Context, profile awsconfig.Profile, region string) (API, error) {
	var opts []func(*awsconf.LoadOptions) error
	if !profile.IsDefault() {
		opts = append(opts, awsconf.WithSharedConfigProfile(string(profile)))
	}
	if region != "" {
		opts = append(opts, awsconf.WithRegion(region))
	}
	cfg, err := awsconf.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}
