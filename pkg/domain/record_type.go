package domain

import dErrors "attesto/pkg/domain-errors"

// RecordType classifies the medical document a token attests to. The type is
// informational for relying parties and selects the authorization path for
// sensitive operations.
//
// Usage: construct via ParseRecordType at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type RecordType string

// Supported record types.
const (
	RecordTypeLabReport        RecordType = "lab_report"
	RecordTypePrescription     RecordType = "prescription"
	RecordTypeImagingReport    RecordType = "imaging_report"
	RecordTypeVaccination      RecordType = "vaccination"
	RecordTypeDischargeSummary RecordType = "discharge_summary"
)

// validRecordTypes is the single source of truth for valid record types.
var validRecordTypes = map[RecordType]bool{
	RecordTypeLabReport:        true,
	RecordTypePrescription:     true,
	RecordTypeImagingReport:    true,
	RecordTypeVaccination:      true,
	RecordTypeDischargeSummary: true,
}

// sensitiveRecordTypes require the threshold authorization path for revoke.
var sensitiveRecordTypes = map[RecordType]bool{
	RecordTypePrescription:     true,
	RecordTypeDischargeSummary: true,
}

// ParseRecordType constructs a RecordType from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported; no
// other errors are expected.
func ParseRecordType(s string) (RecordType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "record type cannot be empty")
	}
	rt := RecordType(s)
	if !rt.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid record type")
	}
	return rt, nil
}

// IsValid checks if the record type is one of the supported enum values.
func (rt RecordType) IsValid() bool {
	return validRecordTypes[rt]
}

// Sensitive reports whether revoking tokens of this type requires the
// issuer's threshold signing policy to be satisfied.
func (rt RecordType) Sensitive() bool {
	return sensitiveRecordTypes[rt]
}

// String returns the string representation of the record type.
func (rt RecordType) String() string {
	return string(rt)
}
