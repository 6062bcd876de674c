package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attesto/pkg/domain-errors"
)

func TestParseDigest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid lowercase", strings.Repeat("ab", 32), false},
		{"valid uppercase", strings.Repeat("AB", 32), false},
		{"all zero is legal", strings.Repeat("0", 64), false},
		{"empty", "", true},
		{"too short", strings.Repeat("ab", 31), true},
		{"too long", strings.Repeat("ab", 33), true},
		{"non-hex", strings.Repeat("zz", 32), true},
		{"odd length", strings.Repeat("a", 63), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDigest(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.ToLower(tt.input), d.String())
		})
	}
}

func TestDigestEqual(t *testing.T) {
	a, err := ParseDigest(strings.Repeat("ab", 32))
	require.NoError(t, err)
	b, err := ParseDigest(strings.Repeat("AB", 32))
	require.NoError(t, err)
	c, err := ParseDigest(strings.Repeat("cd", 32))
	require.NoError(t, err)

	assert.True(t, a.Equal(b), "case of input must not affect value")
	assert.False(t, a.Equal(c))
}

func TestDigestJSONRoundTrip(t *testing.T) {
	d, err := ParseDigest(strings.Repeat("1f", 32))
	require.NoError(t, err)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `"`+strings.Repeat("1f", 32)+`"`, string(raw))

	var back Digest
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, d.Equal(back))

	var rejected Digest
	assert.Error(t, json.Unmarshal([]byte(`"short"`), &rejected))
}
