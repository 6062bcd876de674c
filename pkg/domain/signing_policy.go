package domain

import dErrors "attesto/pkg/domain-errors"

// PolicyKind discriminates the signing policy variants.
type PolicyKind string

const (
	// PolicyNone requires no additional signatures beyond command authenticity.
	PolicyNone PolicyKind = "none"
	// PolicySingle requires one valid signature from the issuer's key set.
	PolicySingle PolicyKind = "single"
	// PolicyThreshold requires Required distinct valid signatures out of the
	// issuer's Total registered keys.
	PolicyThreshold PolicyKind = "threshold"
)

// SigningPolicy is the per-issuer capability check consulted before sensitive
// operations. It is data, not a key-share ceremony: the registry counts
// distinct valid signatures against the policy.
type SigningPolicy struct {
	Kind     PolicyKind `json:"kind" yaml:"kind"`
	Required int        `json:"required,omitempty" yaml:"required,omitempty"`
	Total    int        `json:"total,omitempty" yaml:"total,omitempty"`
}

// NoPolicy returns the policy requiring no extra signatures.
func NoPolicy() SigningPolicy {
	return SigningPolicy{Kind: PolicyNone}
}

// SinglePolicy returns the policy requiring one valid signature.
func SinglePolicy() SigningPolicy {
	return SigningPolicy{Kind: PolicySingle}
}

// ThresholdPolicy constructs an N-of-M policy.
//
// Errors: returns CodeInvalidInput unless 1 <= n <= m.
func ThresholdPolicy(n, m int) (SigningPolicy, error) {
	p := SigningPolicy{Kind: PolicyThreshold, Required: n, Total: m}
	if err := p.Validate(); err != nil {
		return SigningPolicy{}, err
	}
	return p, nil
}

// Validate checks structural well-formedness of the policy.
func (p SigningPolicy) Validate() error {
	switch p.Kind {
	case PolicyNone, PolicySingle:
		return nil
	case PolicyThreshold:
		if p.Required < 1 {
			return dErrors.New(dErrors.CodeInvalidInput, "threshold policy requires at least one signature")
		}
		if p.Required > p.Total {
			return dErrors.New(dErrors.CodeInvalidInput, "threshold policy cannot require more signatures than keys")
		}
		return nil
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unknown signing policy kind")
	}
}

// RequiredSignatures returns the number of distinct valid signatures a
// sensitive operation must carry under this policy.
func (p SigningPolicy) RequiredSignatures() int {
	switch p.Kind {
	case PolicySingle:
		return 1
	case PolicyThreshold:
		return p.Required
	default:
		return 0
	}
}
