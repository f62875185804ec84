// Package e2e runs the feature files against a running timelock server.
//
//	E2E_BASE_URL=http://localhost:8080 E2E_JWT_SIGNING_KEY=dev go test ./...
//
// The server must run with TIMELOCK_MIN_DELAY=1 TIMELOCK_INITIAL_DELAY=3 and
// TIMELOCK_GOVERNANCE=gov so scenarios can wait the delay out.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestContext carries HTTP state across the steps of one scenario.
type TestContext struct {
	baseURL    string
	signingKey []byte
	client     *http.Client

	identity   string
	lastStatus int
	lastBody   []byte
	saved      map[string]any
}

func NewTestContext(baseURL, signingKey string) *TestContext {
	return &TestContext{
		baseURL:    baseURL,
		signingKey: []byte(signingKey),
		client:     &http.Client{Timeout: 10 * time.Second},
		saved:      map[string]any{},
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.identity = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.saved = map[string]any{}
}

func (tc *TestContext) ActAs(identity string) { tc.identity = identity }

func (tc *TestContext) POST(path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	return tc.do(http.MethodPost, path, reader)
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) do(method, path string, body io.Reader) error {
	req, err := http.NewRequest(method, tc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tc.identity != "" {
		token, err := tc.token(tc.identity)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) token(identity string) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   identity,
		Issuer:    "timelock",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	}).SignedString(tc.signingKey)
}

func (tc *TestContext) GetLastResponseStatus() int  { return tc.lastStatus }
func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }

// GetResponseField reads a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %s", tc.lastBody)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) Save(key string, v any) { tc.saved[key] = v }

func (tc *TestContext) Saved(key string) (any, bool) {
	v, ok := tc.saved[key]
	return v, ok
}
