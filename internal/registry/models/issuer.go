package models

import (
	"bytes"
	"crypto/ed25519"
	"time"

	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
)

// IssuerStatus is the lifecycle state of a signing identity.
type IssuerStatus string

const (
	IssuerStatusActive    IssuerStatus = "active"
	IssuerStatusSuspended IssuerStatus = "suspended"
	IssuerStatusRevoked   IssuerStatus = "revoked"
)

// CanTransitionTo permits escalation only: active can be suspended or
// revoked, suspended can be revoked, nothing ever returns to active.
func (s IssuerStatus) CanTransitionTo(target IssuerStatus) bool {
	switch s {
	case IssuerStatusActive:
		return target == IssuerStatusSuspended || target == IssuerStatusRevoked
	case IssuerStatusSuspended:
		return target == IssuerStatusRevoked
	default:
		return false
	}
}

func (s IssuerStatus) String() string {
	return string(s)
}

// IssuerIdentity is the aggregate root for an authorized signing identity.
//
// Invariants:
//   - Address is derived from the first registered key and never changes,
//     so historical events stay resolvable across rotations
//   - Keys holds at least one Ed25519 public key; rotation swaps keys in
//     place and never shrinks the set
//   - Policy.Required never exceeds len(Keys)
//   - Status only escalates (active -> suspended -> revoked); identities
//     are never deleted
type IssuerIdentity struct {
	Address      id.IssuerAddress    `json:"address"`
	Name         string              `json:"name"`
	Keys         []ed25519.PublicKey `json:"-"`
	Status       IssuerStatus        `json:"status"`
	Policy       id.SigningPolicy    `json:"policy"`
	RegisteredAt time.Time           `json:"registered_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NewIssuerIdentity validates and constructs an active identity. The address
// is derived from the first key.
func NewIssuerIdentity(name string, keys []ed25519.PublicKey, policy id.SigningPolicy, now time.Time) (*IssuerIdentity, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "issuer name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "issuer name must be 128 characters or less")
	}
	if len(keys) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "issuer requires at least one key")
	}
	for _, key := range keys {
		if len(key) != ed25519.PublicKeySize {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "issuer key must be a 32-byte ed25519 public key")
		}
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if policy.RequiredSignatures() > len(keys) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "signing policy requires more signatures than registered keys")
	}
	if policy.Kind == id.PolicyThreshold && policy.Total != len(keys) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "threshold policy total must match the number of registered keys")
	}

	return &IssuerIdentity{
		Address:      id.AddressFromKey(keys[0]),
		Name:         name,
		Keys:         keys,
		Status:       IssuerStatusActive,
		Policy:       policy,
		RegisteredAt: now,
		UpdatedAt:    now,
	}, nil
}

func (i *IssuerIdentity) IsActive() bool {
	return i.Status == IssuerStatusActive
}

// KeyIndex returns the position of key in the current signer set, -1 when
// the key is not registered.
func (i *IssuerIdentity) KeyIndex(key ed25519.PublicKey) int {
	for idx, k := range i.Keys {
		if bytes.Equal(k, key) {
			return idx
		}
	}
	return -1
}

// CanSuspend checks the active -> suspended transition.
func (i *IssuerIdentity) CanSuspend() error {
	if !i.Status.CanTransitionTo(IssuerStatusSuspended) {
		return dErrors.New(dErrors.CodeInvariantViolation, "issuer is not active")
	}
	return nil
}

// ApplySuspension freezes the issuer. Call CanSuspend first.
func (i *IssuerIdentity) ApplySuspension(now time.Time) {
	i.Status = IssuerStatusSuspended
	i.UpdatedAt = now
}

// CanRevoke checks the transition into the terminal revoked state.
func (i *IssuerIdentity) CanRevoke() error {
	if !i.Status.CanTransitionTo(IssuerStatusRevoked) {
		return dErrors.New(dErrors.CodeInvariantViolation, "issuer is already revoked")
	}
	return nil
}

// ApplyRevocation retires the identity permanently. Call CanRevoke first.
func (i *IssuerIdentity) ApplyRevocation(now time.Time) {
	i.Status = IssuerStatusRevoked
	i.UpdatedAt = now
}

// CanRotate checks that the identity may swap a key. Suspended issuers are
// frozen: rotation is not a recovery path out of suspension.
func (i *IssuerIdentity) CanRotate(newKey ed25519.PublicKey) error {
	if !i.IsActive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "issuer is not active")
	}
	if len(newKey) != ed25519.PublicKeySize {
		return dErrors.New(dErrors.CodeInvalidInput, "new key must be a 32-byte ed25519 public key")
	}
	if i.KeyIndex(newKey) >= 0 {
		return dErrors.New(dErrors.CodeConflict, "new key is already registered")
	}
	return nil
}

// ApplyRotation replaces the key at idx with newKey. The replaced key is
// invalid for new commands from this moment; events it signed are untouched.
func (i *IssuerIdentity) ApplyRotation(idx int, newKey ed25519.PublicKey, now time.Time) {
	keys := make([]ed25519.PublicKey, len(i.Keys))
	copy(keys, i.Keys)
	keys[idx] = newKey
	i.Keys = keys
	i.UpdatedAt = now
}

// Clone returns a deep copy so store reads never alias the stored slices.
func (i *IssuerIdentity) Clone() *IssuerIdentity {
	out := *i
	out.Keys = make([]ed25519.PublicKey, len(i.Keys))
	for idx, k := range i.Keys {
		key := make(ed25519.PublicKey, len(k))
		copy(key, k)
		out.Keys[idx] = key
	}
	return &out
}
