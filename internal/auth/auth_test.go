package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestIsSessionExpired(t *testing.T) {
	expired := []string{
		"UnauthorizedSSOTokenError: token invalid",
		"Error loading SSO Token: Token for https://corp.awsapps.com/start does not exist",
		"the SSO session associated with this profile has expired or is otherwise invalid",
		"ExpiredToken: The security token included in the request is expired",
		"token has expired and refresh failed",
		"please run `aws sso login --profile prod`",
	}
	for _, text := range expired {
		if !IsSessionExpired(errors.New(text)) {
			t.Errorf("IsSessionExpired(%q) = false", text)
		}
	}

	fresh := []error{
		nil,
		errors.New("AccessDenied: not authorized"),
		errors.New("NoSuchBucket"),
		errors.New("connection reset by peer"),
	}
	for _, err := range fresh {
		if IsSessionExpired(err) {
			t.Errorf("IsSessionExpired(%v) = true", err)
		}
	}
}

func TestDoRetriesOnceAfterReauth(t *testing.T) {
	logins := 0
	c := NewCoordinator(func(context.Context, string) error {
		logins++
		return nil
	})

	attempts := 0
	err := c.Do(context.Background(), "prod", func(context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New("sso token has expired")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if logins != 1 || attempts != 2 {
		t.Fatalf("logins=%d attempts=%d, want exactly one login and one retry", logins, attempts)
	}
}

func TestDoRetriesExactlyOnce(t *testing.T) {
	c := NewCoordinator(func(context.Context, string) error { return nil })

	attempts := 0
	sessionErr := errors.New("sso token has expired")
	err := c.Do(context.Background(), "prod", func(context.Context) error {
		attempts++
		return sessionErr
	})
	if err == nil {
		t.Fatal("expected the retried failure to propagate")
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2 (no retry loop)", attempts)
	}
}

func TestDoPropagatesOtherErrors(t *testing.T) {
	c := NewCoordinator(func(context.Context, string) error {
		t.Fatal("login must not run for non-credential errors")
		return nil
	})

	want := errors.New("AccessDenied")
	err := c.Do(context.Background(), "prod", func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want the original error unmodified", err)
	}
}

func TestDoFailedLoginShortCircuits(t *testing.T) {
	loginErr := errors.New("browser flow aborted")
	c := NewCoordinator(func(context.Context, string) error { return loginErr })

	attempts := 0
	err := c.Do(context.Background(), "prod", func(context.Context) error {
		attempts++
		return errors.New("sso token has expired")
	})
	if !errors.Is(err, loginErr) {
		t.Fatalf("err = %v, want the login failure", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, the failed login must prevent the retry", attempts)
	}
}

func TestReauthSharedAcrossConcurrentCallers(t *testing.T) {
	var logins atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	c := NewCoordinator(func(context.Context, string) error {
		if logins.Add(1) == 1 {
			close(started)
		}
		<-release
		return nil
	})

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Reauth(context.Background(), "prod")
		}()
	}
	<-started
	// Give the remaining callers time to join the in-flight login
	// before it completes.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := logins.Load(); got != 1 {
		t.Fatalf("external login ran %d times for %d concurrent callers", got, callers)
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
}

func TestReauthPerProfileIsolation(t *testing.T) {
	var mu sync.Mutex
	labels := make(map[string]int)
	c := NewCoordinator(func(_ context.Context, label string) error {
		mu.Lock()
		labels[label]++
		mu.Unlock()
		return nil
	})

	if err := c.Reauth(context.Background(), "prod"); err != nil {
		t.Fatal(err)
	}
	if err := c.Reauth(context.Background(), "dev"); err != nil {
		t.Fatal(err)
	}
	// The in-flight entry is cleared after completion: a later expiry
	// for the same profile triggers a fresh login.
	if err := c.Reauth(context.Background(), "prod"); err != nil {
		t.Fatal(err)
	}

	if labels["prod"] != 2 || labels["dev"] != 1 {
		t.Fatalf("logins = %v", labels)
	}
}

func TestCallReturnsValue(t *testing.T) {
	c := NewCoordinator(func(context.Context, string) error { return nil })

	attempts := 0
	value, err := Call(context.Background(), c, "prod", func(context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("expiredtoken")
		}
		return 42, nil
	})
	if err != nil || value != 42 {
		t.Fatalf("Call = (%d, %v)", value, err)
	}
}
