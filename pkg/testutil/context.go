package testutil

import (
	"net/http"

	"timelock/pkg/requestcontext"
)

// WithActor sets the caller identity the actor middleware would inject.
func WithActor(req *http.Request, actor string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}
