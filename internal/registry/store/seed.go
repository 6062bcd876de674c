// Package store bootstraps the issuer registry from a YAML seed file, so a
// fresh deployment starts with its institutions registered before the first
// mint arrives.
package store

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"attesto/internal/registry/models"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
)

// SeedIssuer is one issuer entry in the seed file. Keys are hex-encoded
// Ed25519 public keys; an omitted policy means no extra signatures required.
//
//	issuers:
//	  - name: City Hospital
//	    keys:
//	      - 9d6f...
//	    policy:
//	      kind: threshold
//	      required: 2
//	      total: 3
type SeedIssuer struct {
	Name   string           `yaml:"name"`
	Keys   []string         `yaml:"keys"`
	Policy id.SigningPolicy `yaml:"policy"`
}

// SeedFile is the parsed seed document.
type SeedFile struct {
	Issuers []SeedIssuer `yaml:"issuers"`
}

// Registrar is the slice of the registry service the seed loader needs.
type Registrar interface {
	Register(ctx context.Context, name string, keys []ed25519.PublicKey, policy id.SigningPolicy) (*models.IssuerIdentity, error)
}

// LoadSeed reads and parses the seed file at path.
func LoadSeed(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var file SeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &file, nil
}

// Apply registers every seed entry, returning how many were newly added.
// Entries whose address is already registered are skipped, which makes Apply
// safe to re-run on every reload: the seed file only ever adds issuers, it
// never un-suspends or removes them.
//
// Malformed entries are collected into the returned error; valid entries
// still register.
func (f *SeedFile) Apply(ctx context.Context, registrar Registrar) (int, error) {
	added := 0
	var errs []error
	for _, entry := range f.Issuers {
		keys, err := decodeSeedKeys(entry.Keys)
		if err != nil {
			errs = append(errs, fmt.Errorf("issuer %q: %w", entry.Name, err))
			continue
		}
		policy := entry.Policy
		if policy.Kind == "" {
			policy = id.NoPolicy()
		}

		if _, err := registrar.Register(ctx, entry.Name, keys, policy); err != nil {
			if dErrors.HasCode(err, dErrors.CodeConflict) {
				continue
			}
			errs = append(errs, fmt.Errorf("issuer %q: %w", entry.Name, err))
			continue
		}
		added++
	}
	return added, errors.Join(errs...)
}

func decodeSeedKeys(encoded []string) ([]ed25519.PublicKey, error) {
	if len(encoded) == 0 {
		return nil, errors.New("no keys")
	}
	keys := make([]ed25519.PublicKey, len(encoded))
	for i, item := range encoded {
		raw, err := hex.DecodeString(item)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("key %d is not a hex ed25519 public key", i)
		}
		keys[i] = raw
	}
	return keys, nil
}
