package handler

import (
	"bytes"
	"encoding/json"
	"strings"

	"timelock/internal/timelock/authority"
	dErrors "timelock/pkg/domain-errors"
)

// ProposeRequest is the body of POST /engines/{engine}/actions. Payload is
// decoded by the engine's hook for Kind.
type ProposeRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func (r *ProposeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Kind = strings.TrimSpace(r.Kind)
	if r.Kind == "" {
		return dErrors.New(dErrors.CodeValidation, "kind is required")
	}
	if len(bytes.TrimSpace(r.Payload)) == 0 || bytes.Equal(bytes.TrimSpace(r.Payload), []byte("null")) {
		return dErrors.New(dErrors.CodeInvalidPayload, "payload is required")
	}
	return nil
}

type BootstrapDelayRequest struct {
	Delay uint64 `json:"delay"`
}

func (r *BootstrapDelayRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// AuthorityChangeRequest is the body of POST /engines/{engine}/authority/changes.
type AuthorityChangeRequest struct {
	authority.Change
}

func (r *AuthorityChangeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.NewGovernance = strings.TrimSpace(r.NewGovernance)
	r.Grant.Identity = strings.TrimSpace(r.Grant.Identity)
	return r.Change.Validate()
}
