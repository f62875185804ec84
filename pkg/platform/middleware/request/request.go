// Package request stamps every request with a correlation id and a single
// request-scoped "now", read back through pkg/requestcontext.
package request

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"timelock/pkg/requestcontext"
)

// HeaderRequestID is accepted from callers and echoed on responses.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLen = 128

// Middleware injects the request id and time.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)

		ctx := requestcontext.WithRequestID(r.Context(), id)
		ctx = requestcontext.WithTime(ctx, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
