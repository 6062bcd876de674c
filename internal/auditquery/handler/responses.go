package handler

import (
	"time"

	"attesto/internal/auditquery"
	"attesto/internal/eventlog"
)

// Log entries go out as-is: they already carry wire-ready JSON tags and the
// chain hashes auditors re-verify offline.
type tokenHistoryResponse struct {
	TokenID          string           `json:"token_id"`
	DocHash          string           `json:"doc_hash"`
	RecordType       string           `json:"record_type"`
	Issuer           string           `json:"issuer"`
	StoredStatus     string           `json:"stored_status"`
	EffectiveStatus  string           `json:"effective_status"`
	ExpiresAt        time.Time        `json:"expires_at"`
	CreatedAt        time.Time        `json:"created_at"`
	LastTransitionAt time.Time        `json:"last_transition_at"`
	Events           []eventlog.Entry `json:"events"`
}

func toTokenHistoryResponse(h auditquery.TokenHistory) tokenHistoryResponse {
	return tokenHistoryResponse{
		TokenID:          h.TokenID.String(),
		DocHash:          h.DocHash.String(),
		RecordType:       h.RecordType.String(),
		Issuer:           h.Issuer.String(),
		StoredStatus:     h.StoredStatus.String(),
		EffectiveStatus:  h.EffectiveStatus.String(),
		ExpiresAt:        h.ExpiresAt,
		CreatedAt:        h.CreatedAt,
		LastTransitionAt: h.LastTransitionAt,
		Events:           h.Events,
	}
}

type eventsResponse struct {
	From   uint64           `json:"from"`
	To     uint64           `json:"to"`
	Count  int              `json:"count"`
	Events []eventlog.Entry `json:"events"`
}

type issuerActivityResponse struct {
	Issuer   string    `json:"issuer"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Minted   int       `json:"minted"`
	Consumed int       `json:"consumed"`
	Revoked  int       `json:"revoked"`
	Total    int       `json:"total"`
}

func toIssuerActivityResponse(a auditquery.IssuerActivity) issuerActivityResponse {
	return issuerActivityResponse{
		Issuer:   a.Issuer.String(),
		From:     a.From,
		To:       a.To,
		Minted:   a.Minted,
		Consumed: a.Consumed,
		Revoked:  a.Revoked,
		Total:    a.Total(),
	}
}
