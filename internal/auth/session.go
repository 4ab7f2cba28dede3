// Package auth detects expired federated sessions, re-authenticates
// profiles through the external login flow, and replays failed storage
// calls.
package auth

import "strings"

// sessionExpiredMarkers is the central list of substrings that identify
// an expired-SSO-session failure. The backend SDK does not expose a
// typed distinction, so classification is textual.
var sessionExpiredMarkers = []string{
	"unauthorizedssotokenerror",
	"sso session",
	"sso token",
	"token has expired",
	"token is expired",
	"expiredtoken",
	"the sso session associated with this profile has expired",
	"error loading sso token",
	"run aws sso login",
	"aws sso login",
}

// IsSessionExpired reports whether err describes an expired federated
// session. Nil and unrelated errors return false.
func IsSessionExpired(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, marker := range sessionExpiredMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
