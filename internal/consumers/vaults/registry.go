// Package vaults is a consumer of the timelock engine: a registry of vaults
// whose limits, fee and creation switch change only through confirmed
// actions.
package vaults

import (
	"sort"
	"sync"

	dErrors "timelock/pkg/domain-errors"
)

// Limits bounds the registry.
type Limits struct {
	MaxVaults         uint64 `json:"max_vaults"`
	MaxAssetsPerVault uint64 `json:"max_assets_per_vault"`
}

// Settings is the governed configuration of the registry.
type Settings struct {
	Limits          Limits `json:"limits"`
	CreationEnabled bool   `json:"creation_enabled"`
	FeeBps          uint64 `json:"fee_bps"`
}

// Vault is a registered vault and the assets it holds.
type Vault struct {
	ID     string   `json:"id"`
	Assets []string `json:"assets"`
}

// Registry holds vaults. Governed settings are read by the validation hooks
// at both proposal and confirmation, so they always see live state.
type Registry struct {
	mu       sync.RWMutex
	settings Settings
	vaults   map[string]*Vault
}

// New creates a registry with the given starting settings.
func New(initial Settings) *Registry {
	return &Registry{settings: initial, vaults: make(map[string]*Vault)}
}

// Settings returns the current governed settings.
func (r *Registry) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// VaultCount returns the number of registered vaults.
func (r *Registry) VaultCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vaults)
}

// Vaults lists vaults by id.
func (r *Registry) Vaults() []Vault {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Vault, 0, len(r.vaults))
	for _, v := range r.vaults {
		out = append(out, Vault{ID: v.ID, Assets: append([]string(nil), v.Assets...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateVault registers a vault while creation is enabled and below the cap.
func (r *Registry) CreateVault(id string) error {
	if id == "" {
		return dErrors.New(dErrors.CodeValidation, "vault id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.settings.CreationEnabled {
		return dErrors.New(dErrors.CodeConflict, "vault creation is disabled")
	}
	if _, exists := r.vaults[id]; exists {
		return dErrors.Newf(dErrors.CodeConflict, "vault %q already exists", id)
	}
	if uint64(len(r.vaults)) >= r.settings.Limits.MaxVaults {
		return dErrors.New(dErrors.CodeConflict, "vault limit reached")
	}
	r.vaults[id] = &Vault{ID: id}
	return nil
}

// AddAsset adds asset to a vault below the per-vault cap.
func (r *Registry) AddAsset(vaultID, asset string) error {
	if asset == "" {
		return dErrors.New(dErrors.CodeValidation, "asset is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vaults[vaultID]
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "vault %q not found", vaultID)
	}
	for _, a := range v.Assets {
		if a == asset {
			return dErrors.Newf(dErrors.CodeConflict, "asset %q already in vault", asset)
		}
	}
	if uint64(len(v.Assets)) >= r.settings.Limits.MaxAssetsPerVault {
		return dErrors.New(dErrors.CodeConflict, "asset limit reached for vault")
	}
	v.Assets = append(v.Assets, asset)
	return nil
}

// largestVault must be called with r.mu held.
func (r *Registry) largestVault() uint64 {
	var largest uint64
	for _, v := range r.vaults {
		if n := uint64(len(v.Assets)); n > largest {
			largest = n
		}
	}
	return largest
}
