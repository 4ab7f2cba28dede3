package awsconfig

// Profile identifies a credential identity against the storage backend.
// The empty string is the ambient/default identity.
type Profile string

// Default is the ambient credential identity.
const Default Profile = ""

// IsDefault reports whether p is the ambient/default identity.
func (p Profile) IsDefault() bool {
	return p == Default
}

// Label returns the human-readable profile name ("default" for the
// ambient identity). This is also the name passed to `aws sso login`.
func (p Profile) Label() string {
	if p == Default {
		return "default"
	}
	return string(p)
}

// NormalizeProfiles maps "default" to the ambient identity, removes
// duplicates preserving order, and falls back to just the default
// identity when the input is empty.
func NormalizeProfiles(names []string) []Profile {
	seen := make(map[Profile]struct{}, len(names))
	normalized := make([]Profile, 0, len(names))
	for _, name := range names {
		p := Profile(name)
		if name == "default" {
			p = Default
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		normalized = append(normalized, p)
	}
	if len(normalized) == 0 {
		normalized = []Profile{Default}
	}
	return normalized
}
