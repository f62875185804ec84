package models

// Capability is a single permission an identity may hold for a kind.
type Capability uint8

const (
	CanProposeFull Capability = 1 << iota
	CanConfirmFull
	CanCancel
	// CanDisableOnly permits proposing and confirming the disabling direction
	// of boolean-style kinds, and nothing else.
	CanDisableOnly
)

// FullAuthority is the capability set of a full administrator.
const FullAuthority = CanProposeFull | CanConfirmFull | CanCancel

// Has reports whether c includes every bit of other.
func (c Capability) Has(other Capability) bool {
	return other != 0 && c&other == other
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	names := []struct {
		bit  Capability
		name string
	}{
		{CanProposeFull, "propose"},
		{CanConfirmFull, "confirm"},
		{CanCancel, "cancel"},
		{CanDisableOnly, "disable_only"},
	}
	out := ""
	for _, n := range names {
		if c&n.bit == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += n.name
	}
	return out
}

// ParseCapability maps a capability name to its bit.
func ParseCapability(s string) (Capability, bool) {
	switch s {
	case "propose":
		return CanProposeFull, true
	case "confirm":
		return CanConfirmFull, true
	case "cancel":
		return CanCancel, true
	case "disable_only":
		return CanDisableOnly, true
	case "full":
		return FullAuthority, true
	}
	return 0, false
}

// AuthorityRecord is the capability set one identity holds, per kind.
type AuthorityRecord struct {
	Identity string                    `json:"identity"`
	Kinds    map[ActionKind]Capability `json:"kinds"`
}

// Grant is one identity/kind/capability assignment, used for engine setup and
// authority changes.
type Grant struct {
	Identity     string     `json:"identity"`
	Kind         ActionKind `json:"kind"`
	Capabilities Capability `json:"capabilities"`
}
