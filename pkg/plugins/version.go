package plugins

import (
	"fmt"
	"strconv"
	"strings"
)

// HostAPIVersion is the version of the plugin API implemented by this host.
// Dynamic plugins declare the minimum host version they need in PLUGIN_API_VERSION.
const HostAPIVersion = "1.0.0"

// Version is a MAJOR.MINOR.PATCH identifier
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
}

// ParseVersion parses a string of the form "MAJOR.MINOR.PATCH".
// Every component must be present and be a non-negative decimal integer.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, &VersionParseError{Input: s, Reason: fmt.Sprintf("expected 3 components, got %d", len(parts))}
	}

	var nums [3]uint64
	for i, part := range parts {
		if part == "" {
			return Version{}, &VersionParseError{Input: s, Reason: fmt.Sprintf("component %d is empty", i+1)}
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Version{}, &VersionParseError{Input: s, Reason: fmt.Sprintf("component %d (%q) is not a number", i+1, part)}
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParseVersion is like ParseVersion but panics on malformed input.
// Use it for compile-time constants only.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the dotted form of the version
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare orders versions component by component.
// It returns -1, 0 or +1.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return cmpUint(v.Major, other.Major)
	case v.Minor != other.Minor:
		return cmpUint(v.Minor, other.Minor)
	default:
		return cmpUint(v.Patch, other.Patch)
	}
}

// CanLoad reports whether a host at version host may run a plugin that requires
// the host API at version required. The majors must match exactly and the host's
// (minor, patch) must not be older than the required one.
func CanLoad(host, required Version) bool {
	if host.Major != required.Major {
		return false
	}
	if host.Minor != required.Minor {
		return host.Minor > required.Minor
	}
	return host.Patch >= required.Patch
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
