package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attesto/pkg/domain-errors"
)

func TestThresholdPolicy(t *testing.T) {
	t.Run("valid N of M", func(t *testing.T) {
		p, err := ThresholdPolicy(2, 3)
		require.NoError(t, err)
		assert.Equal(t, PolicyThreshold, p.Kind)
		assert.Equal(t, 2, p.RequiredSignatures())
	})

	t.Run("N equal to M is valid", func(t *testing.T) {
		_, err := ThresholdPolicy(3, 3)
		require.NoError(t, err)
	})

	t.Run("zero required rejected", func(t *testing.T) {
		_, err := ThresholdPolicy(0, 3)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("required above total rejected", func(t *testing.T) {
		_, err := ThresholdPolicy(4, 3)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestSigningPolicyRequiredSignatures(t *testing.T) {
	assert.Equal(t, 0, NoPolicy().RequiredSignatures())
	assert.Equal(t, 1, SinglePolicy().RequiredSignatures())

	p, err := ThresholdPolicy(2, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, p.RequiredSignatures())
}

func TestSigningPolicyValidate(t *testing.T) {
	assert.NoError(t, NoPolicy().Validate())
	assert.NoError(t, SinglePolicy().Validate())
	assert.Error(t, SigningPolicy{Kind: "quorum"}.Validate())
}

func TestParseRecordType(t *testing.T) {
	t.Run("accepts supported types", func(t *testing.T) {
		for _, s := range []string{"lab_report", "prescription", "imaging_report", "vaccination", "discharge_summary"} {
			rt, err := ParseRecordType(s)
			require.NoError(t, err)
			assert.Equal(t, s, rt.String())
		}
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := ParseRecordType("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects unknown", func(t *testing.T) {
		_, err := ParseRecordType("selfie")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestRecordTypeSensitive(t *testing.T) {
	assert.True(t, RecordTypePrescription.Sensitive())
	assert.True(t, RecordTypeDischargeSummary.Sensitive())
	assert.False(t, RecordTypeLabReport.Sensitive())
	assert.False(t, RecordTypeImagingReport.Sensitive())
	assert.False(t, RecordTypeVaccination.Sensitive())
}
