package subwire

import (
	"fmt"
	"strconv"
	"strings"
)

// ProtocolVersion is a REST API version reported by the server. Values are
// comparable and totally ordered by (Major, Minor, Patch).
type ProtocolVersion struct {
	Major int
	Minor int
	Patch int
}

// Known protocol versions.
var (
	V1_1_0  = ProtocolVersion{1, 1, 0}
	V1_2_0  = ProtocolVersion{1, 2, 0}
	V1_3_0  = ProtocolVersion{1, 3, 0}
	V1_4_0  = ProtocolVersion{1, 4, 0}
	V1_5_0  = ProtocolVersion{1, 5, 0}
	V1_6_0  = ProtocolVersion{1, 6, 0}
	V1_7_0  = ProtocolVersion{1, 7, 0}
	V1_8_0  = ProtocolVersion{1, 8, 0}
	V1_9_0  = ProtocolVersion{1, 9, 0}
	V1_10_2 = ProtocolVersion{1, 10, 2}
	V1_11_0 = ProtocolVersion{1, 11, 0}
	V1_12_0 = ProtocolVersion{1, 12, 0}
	V1_13_0 = ProtocolVersion{1, 13, 0}
	V1_14_0 = ProtocolVersion{1, 14, 0}
	V1_15_0 = ProtocolVersion{1, 15, 0}
	V1_16_0 = ProtocolVersion{1, 16, 0}
)

// DigestAuthMinVersion is the first version at which servers require the
// salted digest scheme; anything older only understands the reversible form.
var DigestAuthMinVersion = V1_13_0

// knownVersions is sorted ascending.
var knownVersions = []ProtocolVersion{
	V1_1_0, V1_2_0, V1_3_0, V1_4_0, V1_5_0, V1_6_0, V1_7_0, V1_8_0,
	V1_9_0, V1_10_2, V1_11_0, V1_12_0, V1_13_0, V1_14_0, V1_15_0, V1_16_0,
}

// KnownVersions returns a copy of the known versions in ascending order.
func KnownVersions() []ProtocolVersion {
	out := make([]ProtocolVersion, len(knownVersions))
	copy(out, knownVersions)
	return out
}

// String returns the canonical "major.minor.patch" form.
func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsZero reports whether v is the zero value.
func (v ProtocolVersion) IsZero() bool {
	return v == ProtocolVersion{}
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal to or after o.
func (v ProtocolVersion) Compare(o ProtocolVersion) int {
	switch {
	case v.Major != o.Major:
		return cmpInt(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpInt(v.Minor, o.Minor)
	default:
		return cmpInt(v.Patch, o.Patch)
	}
}

// Less reports whether v < o.
func (v ProtocolVersion) Less(o ProtocolVersion) bool {
	return v.Compare(o) < 0
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// ParseVersion parses s and requires an exact match against the known set.
func ParseVersion(s string) (ProtocolVersion, error) {
	v, err := parseComponents(s)
	if err != nil {
		return ProtocolVersion{}, err
	}
	for _, known := range knownVersions {
		if known == v {
			return known, nil
		}
	}
	return ProtocolVersion{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, s)
}

// ClosestKnownVersion resolves s to the highest known version that does not
// exceed it, comparing the full (major, minor, patch) tuple. "1.16.1" resolves
// to 1.16.0 and "1.10.0" to 1.9.0, since 1.10.2 sorts above it. Versions with
// another major, or below the oldest known one, are unsupported.
func ClosestKnownVersion(s string) (ProtocolVersion, error) {
	v, err := parseComponents(s)
	if err != nil {
		return ProtocolVersion{}, err
	}
	if v.Major != knownVersions[0].Major {
		return ProtocolVersion{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, s)
	}
	for i := len(knownVersions) - 1; i >= 0; i-- {
		known := knownVersions[i]
		if !v.Less(known) {
			return known, nil
		}
	}
	return ProtocolVersion{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, s)
}

// MustParseVersion is like ParseVersion but panics on error. Intended for constants in tests and main packages.
func MustParseVersion(s string) ProtocolVersion {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func parseComponents(s string) (ProtocolVersion, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return ProtocolVersion{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, s)
	}
	nums := [3]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return ProtocolVersion{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, s)
		}
		nums[i] = n
	}
	return ProtocolVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}
