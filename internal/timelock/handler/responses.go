package handler

import (
	"timelock/internal/timelock/models"
)

// ActionResponse is a pending action with its decoded payload.
type ActionResponse struct {
	ID            models.ActionID   `json:"id"`
	Kind          models.ActionKind `json:"kind"`
	Payload       any               `json:"payload"`
	Proposer      string            `json:"proposer"`
	ProposedAt    models.Tick       `json:"proposed_at"`
	ConfirmableAt models.Tick       `json:"confirmable_at"`
	// ExpiresAt is 0 for actions that never expire.
	ExpiresAt models.Tick   `json:"expires_at"`
	Status    models.Status `json:"status"`
}

func toActionResponse(a *models.PendingAction) *ActionResponse {
	return &ActionResponse{
		ID:            a.ID,
		Kind:          a.Kind,
		Payload:       a.Payload,
		Proposer:      a.Proposer,
		ProposedAt:    a.ProposedAt,
		ConfirmableAt: a.ConfirmableAt,
		ExpiresAt:     a.ExpiresAt,
		Status:        models.StatusProposed,
	}
}

type ConfirmResponse struct {
	ID        models.ActionID `json:"id"`
	Outcome   models.Outcome  `json:"outcome"`
	Confirmed bool            `json:"confirmed"`
	Status    models.Status   `json:"status"`
}

// EngineResponse describes an engine's configuration.
type EngineResponse struct {
	Name             string                   `json:"name"`
	Governance       string                   `json:"governance"`
	Kinds            []models.ActionKind      `json:"kinds"`
	Delay            models.DelayConfig       `json:"delay"`
	ExpirationWindow models.Tick              `json:"expiration_window"`
	Authorities      []models.AuthorityRecord `json:"authorities"`
}

func toEngineResponse(e Engine) *EngineResponse {
	return &EngineResponse{
		Name:             e.Name(),
		Governance:       e.Governance(),
		Kinds:            e.Kinds(),
		Delay:            e.Delay(),
		ExpirationWindow: e.Expiration().Window(),
		Authorities:      e.Authorities(),
	}
}
