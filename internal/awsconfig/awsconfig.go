// Package awsconfig reads the local AWS credential environment: shared
// config profiles, SSO sessions, cached SSO tokens, and a fingerprint
// over the credential source files used for cache invalidation.
package awsconfig

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-ini/ini"
)

// loginBuffer is how much remaining token validity counts as "still
// logged in" during the preflight check.
const loginBuffer = 5 * time.Minute

// Store reads profile and token state from the local AWS config files.
type Store struct {
	configPath      string
	credentialsPath string
	ssoCacheDir     string
}

// NewStore creates a Store over the standard ~/.aws locations.
// AWS_CONFIG_FILE and AWS_SHARED_CREDENTIALS_FILE are honored.
func NewStore() *Store {
	home, _ := os.UserHomeDir()
	configPath := os.Getenv("AWS_CONFIG_FILE")
	if configPath == "" {
		configPath = filepath.Join(home, ".aws", "config")
	}
	credentialsPath := os.Getenv("AWS_SHARED_CREDENTIALS_FILE")
	if credentialsPath == "" {
		credentialsPath = filepath.Join(home, ".aws", "credentials")
	}
	return &Store{
		configPath:      configPath,
		credentialsPath: credentialsPath,
		ssoCacheDir:     filepath.Join(home, ".aws", "sso", "cache"),
	}
}

// NewStoreAt creates a Store over explicit file locations, for tests.
func NewStoreAt(configPath, credentialsPath, ssoCacheDir string) *Store {
	return &Store{
		configPath:      configPath,
		credentialsPath: credentialsPath,
		ssoCacheDir:     ssoCacheDir,
	}
}

// AvailableProfiles enumerates profile names from the shared config and
// credentials files, config first, preserving file order.
func (s *Store) AvailableProfiles() []string {
	var names []string
	seen := make(map[string]struct{})
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	if cfg := loadINI(s.configPath); cfg != nil {
		for _, section := range cfg.Sections() {
			name := section.Name()
			switch {
			case name == "default":
				add("default")
			case strings.HasPrefix(name, "profile "):
				add(strings.TrimPrefix(name, "profile "))
			}
		}
	}
	if creds := loadINI(s.credentialsPath); creds != nil {
		for _, section := range creds.Sections() {
			name := section.Name()
			if name == ini.DefaultSection {
				continue
			}
			add(name)
		}
	}
	return names
}

// StartURLs returns each profile's SSO start URL, resolved directly from
// sso_start_url or through the profile's named sso-session section.
func (s *Store) StartURLs() map[string]string {
	cfg := loadINI(s.configPath)
	if cfg == nil {
		return nil
	}

	sessions := make(map[string]string)
	for _, section := range cfg.Sections() {
		name := section.Name()
		if !strings.HasPrefix(name, "sso-session ") {
			continue
		}
		if url := section.Key("sso_start_url").String(); url != "" {
			sessions[strings.TrimPrefix(name, "sso-session ")] = url
		}
	}

	urls := make(map[string]string)
	for _, section := range cfg.Sections() {
		name := section.Name()
		var profile string
		switch {
		case name == "default":
			profile = "default"
		case strings.HasPrefix(name, "profile "):
			profile = strings.TrimPrefix(name, "profile ")
		default:
			continue
		}
		url := section.Key("sso_start_url").String()
		if url == "" {
			if session := section.Key("sso_session").String(); session != "" {
				url = sessions[session]
			}
		}
		if url != "" {
			urls[profile] = url
		}
	}
	return urls
}

// TokenExpirations scans the SSO token cache and returns the latest
// expiry per start URL. Unreadable or malformed entries are skipped.
func (s *Store) TokenExpirations() map[string]time.Time {
	entries, err := os.ReadDir(s.ssoCacheDir)
	if err != nil {
		return nil
	}
	expirations := make(map[string]time.Time)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.ssoCacheDir, entry.Name()))
		if err != nil {
			continue
		}
		var token struct {
			StartURL  string `json:"startUrl"`
			ExpiresAt string `json:"expiresAt"`
		}
		if err := json.Unmarshal(data, &token); err != nil {
			continue
		}
		if token.StartURL == "" || token.ExpiresAt == "" {
			continue
		}
		expires, ok := ParseExpiresAt(token.ExpiresAt)
		if !ok {
			continue
		}
		if current, exists := expirations[token.StartURL]; !exists || expires.After(current) {
			expirations[token.StartURL] = expires
		}
	}
	return expirations
}

// LoginTargets returns the profile labels whose SSO start URL has no
// token valid beyond a small buffer, deduplicated by start URL, in the
// order of the given configured profiles.
func (s *Store) LoginTargets(profiles []Profile, now time.Time) []string {
	startURLs := s.StartURLs()
	if len(startURLs) == 0 {
		return nil
	}
	expirations := s.TokenExpirations()
	deadline := now.Add(loginBuffer)

	var targets []string
	seen := make(map[string]struct{})
	for _, profile := range profiles {
		url := startURLs[profile.Label()]
		if url == "" {
			continue
		}
		if expires, ok := expirations[url]; ok && expires.After(deadline) {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		targets = append(targets, profile.Label())
	}
	return targets
}

// Fingerprint hashes the contents of the config and credentials files.
// Files that cannot be read are skipped; if nothing was readable the
// fingerprint is undefined and the empty string is returned.
func (s *Store) Fingerprint() string {
	hasher := sha256.New()
	found := false
	sources := []struct {
		label string
		path  string
	}{
		{"config", s.configPath},
		{"credentials", s.credentialsPath},
	}
	for _, source := range sources {
		data, err := os.ReadFile(source.path)
		if err != nil {
			continue
		}
		hasher.Write([]byte(source.label))
		hasher.Write([]byte{0})
		hasher.Write(data)
		hasher.Write([]byte{0})
		found = true
	}
	if !found {
		return ""
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// ParseExpiresAt parses SSO token cache timestamps, which appear as
// RFC3339, with a trailing "UTC", or with an explicit offset.
func ParseExpiresAt(value string) (time.Time, bool) {
	text := strings.TrimSpace(value)
	if strings.HasSuffix(text, "UTC") {
		text = strings.TrimSuffix(text, "UTC") + "Z"
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z07:00", "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func loadINI(path string) *ini.File {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil
	}
	return cfg
}
