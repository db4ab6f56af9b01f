// Package status defines the three-valued verification outcome reported by the oracle.
package status

import (
	"errors"
	"fmt"
)

// ErrInvalidStatus is returned for ordinals outside the known outcomes.
var ErrInvalidStatus = errors.New("invalid status")

// Status is the verification outcome. The ordinals are part of the wire format.
type Status uint8

const (
	NotFound       Status = 0
	KYCUser        Status = 1
	HumanAndUnique Status = 2
)

var names = [...]string{
	NotFound:       "NOT_FOUND",
	KYCUser:        "KYC_USER",
	HumanAndUnique: "HUMAN_AND_UNIQUE",
}

// FromOrdinal converts a raw ordinal into a Status.
func FromOrdinal(ordinal uint64) (Status, error) {
	if ordinal >= uint64(len(names)) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidStatus, ordinal)
	}
	return Status(ordinal), nil
}

// ToDisplayName returns the canonical name for an ordinal.
func ToDisplayName(ordinal uint64) (string, error) {
	s, err := FromOrdinal(ordinal)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Valid reports whether s is one of the known outcomes.
func (s Status) Valid() bool {
	return int(s) < len(names)
}

// Validate reports whether (s, kycTimestamp) may be recorded as a fulfillment.
// KYC_USER needs a nonzero timestamp; the other outcomes need exactly zero.
func Validate(s Status, kycTimestamp uint64) bool {
	switch s {
	case KYCUser:
		return kycTimestamp != 0
	case HumanAndUnique, NotFound:
		return kycTimestamp == 0
	default:
		return false
	}
}

// IsHumanAndUnique reports whether the outcome implies a unique human.
func (s Status) IsHumanAndUnique() bool {
	return s == KYCUser || s == HumanAndUnique
}

// IsKYCUser reports whether the outcome is a KYC'd user.
func (s Status) IsKYCUser() bool {
	return s == KYCUser
}
