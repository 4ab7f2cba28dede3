package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/awss/awss/internal/awsconfig"
	"github.com/awss/awss/internal/logging"
)

// ExecLogin runs `aws sso login --profile <label>` and opens the
// interactive browser flow. On failure the error carries the CLI's
// stderr (or stdout) output.
func ExecLogin(ctx context.Context, profileLabel string) error {
	cmd := exec.CommandContext(ctx, "aws", "sso", "login", "--profile", profileLabel)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("aws CLI not found; cannot run `aws sso login`")
	}
	message := strings.TrimSpace(stderr.String())
	if message == "" {
		message = strings.TrimSpace(stdout.String())
	}
	if message == "" {
		message = fmt.Sprintf("aws sso login failed for profile %q", profileLabel)
	}
	return errors.New(message)
}

// Preflight logs in every profile whose SSO token is missing or about
// to expire, before the first storage call. Failures are logged and
// returned but do not stop the remaining targets.
func (c *Coordinator) Preflight(ctx context.Context, store *awsconfig.Store, profiles []awsconfig.Profile) []error {
	targets := store.LoginTargets(profiles, time.Now())
	var errs []error
	for _, label := range targets {
		logging.Warn("SSO login required, opening browser",
			zap.String("profile", label))
		if err := c.Reauth(ctx, label); err != nil {
			logging.Error("SSO login failed",
				zap.String("profile", label), zap.Error(err))
			errs = append(errs, fmt.Errorf("profile %s: %w", label, err))
		}
	}
	return errs
}
