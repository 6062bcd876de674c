package handler

import (
	"encoding/hex"
	"time"

	"attesto/internal/registry/models"
	id "attesto/pkg/domain"
)

// issuerResponse is the wire view of an issuer identity. Keys are hex-encoded
// to match the registration and seed file formats.
type issuerResponse struct {
	Address      string           `json:"address"`
	Name         string           `json:"name"`
	Keys         []string         `json:"keys"`
	Status       string           `json:"status"`
	Policy       id.SigningPolicy `json:"policy"`
	RegisteredAt time.Time        `json:"registered_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type listIssuersResponse struct {
	Issuers []issuerResponse `json:"issuers"`
}

func toIssuerResponse(identity *models.IssuerIdentity) issuerResponse {
	keys := make([]string, len(identity.Keys))
	for i, k := range identity.Keys {
		keys[i] = hex.EncodeToString(k)
	}
	return issuerResponse{
		Address:      identity.Address.String(),
		Name:         identity.Name,
		Keys:         keys,
		Status:       string(identity.Status),
		Policy:       identity.Policy,
		RegisteredAt: identity.RegisteredAt,
		UpdatedAt:    identity.UpdatedAt,
	}
}
