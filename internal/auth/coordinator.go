package auth

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/awss/awss/internal/awsconfig"
	"github.com/awss/awss/internal/logging"
	"github.com/awss/awss/internal/metrics"
)

// LoginFunc performs an interactive re-authentication for a profile
// label and returns an error with a human-readable message on failure.
type LoginFunc func(ctx context.Context, profileLabel string) error

// Coordinator recovers storage operations from expired federated
// sessions: one re-auth per profile label at a time, shared by all
// concurrent callers, then a single replay of the failed call.
type Coordinator struct {
	login LoginFunc
	group singleflight.Group
}

// NewCoordinator creates a Coordinator using the given login flow.
func NewCoordinator(login LoginFunc) *Coordinator {
	return &Coordinator{login: login}
}

// Do runs op, and if it fails with a session-expired error,
// re-authenticates the profile and retries exactly once. Any other
// error propagates unmodified.
func (c *Coordinator) Do(ctx context.Context, profile awsconfig.Profile, op func(context.Context) error) error {
	err := op(ctx)
	if err == nil || !IsSessionExpired(err) {
		return err
	}
	logging.Warn("session expired, re-authenticating",
		zap.String("profile", profile.Label()))
	if loginErr := c.Reauth(ctx, profile.Label()); loginErr != nil {
		return loginErr
	}
	return op(ctx)
}

// Reauth runs the external login flow for a profile label. Concurrent
// callers for the same label share one in-flight login; the entry is
// cleared after completion so a later expiry triggers a fresh login.
func (c *Coordinator) Reauth(ctx context.Context, profileLabel string) error {
	_, err, shared := c.group.Do(profileLabel, func() (interface{}, error) {
		err := c.login(ctx, profileLabel)
		metrics.RecordReauth(err == nil)
		return nil, err
	})
	if err != nil {
		return err
	}
	if shared {
		logging.Debug("joined in-flight login", zap.String("profile", profileLabel))
	}
	return nil
}

// Call is the typed variant of Coordinator.Do for operations that
// return a value.
func Call[T any](ctx context.Context, c *Coordinator, profile awsconfig.Profile, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := c.Do(ctx, profile, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
