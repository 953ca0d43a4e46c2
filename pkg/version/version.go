// Package version holds the simulator version and compares versions
// reported by remote simulations.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Current is the version of this simulator. Simulations and control
// clients with the same major version understand each other.
const Current = "1.0"

// ErrIncompatible indicates a remote version with another major version.
var ErrIncompatible = errors.New("incompatible version")

// Version is a parsed "major.minor" version.
type Version struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return Version{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// Less reports whether v is older than other.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	return v.Minor < other.Minor
}

// CheckRemote checks a version reported by a remote simulation against
// Current.
func CheckRemote(remote string) error {
	rv, err := Parse(remote)
	if err != nil {
		return err
	}
	cv, _ := Parse(Current)
	if !cv.Compatible(rv) {
		return fmt.Errorf("%w: remote %s, local %s", ErrIncompatible, rv, cv)
	}
	return nil
}
