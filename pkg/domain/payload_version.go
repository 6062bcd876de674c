package domain

import (
	"fmt"
)

// PayloadVersion represents a valid presentation payload version string.
// This is a domain primitive that enforces validity at parse time.
type PayloadVersion string

// Supported payload versions.
const (
	PayloadVersionV1 PayloadVersion = "v1"
	// Future versions: PayloadVersionV2 PayloadVersion = "v2"
)

// versionOrder defines the ordering of versions for comparison.
// Higher numbers represent newer versions.
var versionOrder = map[PayloadVersion]int{
	PayloadVersionV1: 1,
}

// ParsePayloadVersion validates and returns a PayloadVersion.
// Returns an error if the version is unknown.
func ParsePayloadVersion(s string) (PayloadVersion, error) {
	v := PayloadVersion(s)
	if _, ok := versionOrder[v]; !ok {
		return "", fmt.Errorf("unknown payload version: %s", s)
	}
	return v, nil
}

// String returns the string representation of the payload version.
func (v PayloadVersion) String() string {
	return string(v)
}

// IsNil returns true if the payload version is empty.
func (v PayloadVersion) IsNil() bool {
	return v == ""
}

// IsAtLeast returns true if this version is >= other.
// Used when a newer codec decodes payloads written by an older one.
func (v PayloadVersion) IsAtLeast(other PayloadVersion) bool {
	thisOrder, thisOK := versionOrder[v]
	otherOrder, otherOK := versionOrder[other]

	// Unknown versions are treated as lower than any known version
	if !thisOK {
		return false
	}
	if !otherOK {
		return true
	}

	return thisOrder >= otherOrder
}

// SupportedVersions returns all currently supported payload versions.
func SupportedVersions() []PayloadVersion {
	return []PayloadVersion{PayloadVersionV1}
}

// DefaultVersion returns the version new payloads are encoded with.
func DefaultVersion() PayloadVersion {
	return PayloadVersionV1
}
