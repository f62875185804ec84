package vaults

import "timelock/internal/timelock/models"

const (
	KindSetLimits          models.ActionKind = "vaults.set_limits"
	KindSetCreationEnabled models.ActionKind = "vaults.set_creation_enabled"
	KindSetFee             models.ActionKind = "vaults.set_fee"
)

const (
	EventLimitsSet          models.EventType = "vault_limits_set"
	EventCreationEnabledSet models.EventType = "vault_creation_enabled_set"
	EventFeeSet             models.EventType = "vault_fee_set"
)

// Payload is the closed set of changes the vault registry accepts.
type Payload interface {
	models.Payload
	isVaultPayload()
}

// SetVaultLimits caps the number of vaults and the assets each may hold.
// Both values are required and may not drop below what already exists.
type SetVaultLimits struct {
	MaxVaults         uint64 `json:"max_vaults"`
	MaxAssetsPerVault uint64 `json:"max_assets_per_vault"`
}

// SetVaultCreationEnabled switches vault creation on or off.
type SetVaultCreationEnabled struct {
	Enabled bool `json:"enabled"`
}

// SetVaultFee sets the protocol fee in basis points, 0 < fee <= 100%.
type SetVaultFee struct {
	FeeBps uint64 `json:"fee_bps"`
}

func (SetVaultLimits) Kind() models.ActionKind          { return KindSetLimits }
func (SetVaultCreationEnabled) Kind() models.ActionKind { return KindSetCreationEnabled }
func (SetVaultFee) Kind() models.ActionKind             { return KindSetFee }

func (p SetVaultCreationEnabled) Enables() bool { return p.Enabled }

func (SetVaultLimits) isVaultPayload()          {}
func (SetVaultCreationEnabled) isVaultPayload() {}
func (SetVaultFee) isVaultPayload()             {}
