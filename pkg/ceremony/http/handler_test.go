// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of onestep-auth.
//
// onestep-auth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jeremyhahn/onestep-auth/pkg/ceremony"
	"github.com/jeremyhahn/onestep-auth/pkg/challenge"
	"github.com/jeremyhahn/onestep-auth/pkg/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRPID   = "onestep.example"
	testOrigin = "https://onestep.example"
)

type handlerEnv struct {
	handler  *Handler
	registry credential.Registry
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	store := challenge.NewMemoryStore()
	t.Cleanup(store.Stop)
	registry := credential.NewMemoryRegistry()

	engine, err := ceremony.NewEngine(ceremony.EngineParams{
		Config: &ceremony.Config{
			RPID:          testRPID,
			RPDisplayName: "OneStep",
			RPOrigin:      testOrigin,
		},
		ChallengeStore: store,
		Registry:       registry,
	})
	require.NoError(t, err)

	return &handlerEnv{
		handler:  NewHandler(engine, registry),
		registry: registry,
	}
}

// beginRegistration runs the begin endpoint and returns the decoded challenge.
func (env *handlerEnv) beginRegistration(t *testing.T, subjectKey string) ChallengeResponse {
	t.Helper()

	body, _ := json.Marshal(BeginRegistrationRequest{SubjectKey: subjectKey})
	req := httptest.NewRequest(http.MethodPost, "/registration/begin", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.handler.BeginRegistration(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ChallengeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// register drives a full registration through the HTTP surface using a mock
// authenticator and returns it for subsequent logins.
func (env *handlerEnv) register(t *testing.T, subjectKey string) *ceremony.MockAuthenticator {
	t.Helper()

	auth, err := ceremony.NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	ch := env.beginRegistration(t, subjectKey)
	nonce, err := base64.RawURLEncoding.DecodeString(ch.Nonce)
	require.NoError(t, err)

	parsed, err := auth.CreateRegistrationResponse(nonce, testOrigin)
	require.NoError(t, err)
	body, err := json.Marshal(parsed.Raw)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/registration/finish", bytes.NewReader(body))
	req.Header.Set(HeaderSubjectKey, subjectKey)
	req.Header.Set(HeaderDeviceClass, string(credential.DeviceClassTouch))
	rec := httptest.NewRecorder()
	env.handler.FinishRegistration(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	return auth
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			reader = strings.NewReader(s)
		} else {
			b, _ := json.Marshal(body)
			reader = bytes.NewReader(b)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandler_BeginRegistration(t *testing.T) {
	env := newHandlerEnv(t)

	tests := []struct {
		name       string
		method     string
		body       interface{}
		wantStatus int
		wantErr    string
	}{
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
			wantErr:    "method not allowed",
		},
		{
			name:       "invalid body",
			method:     http.MethodPost,
			body:       "not json",
			wantStatus: http.StatusBadRequest,
			wantErr:    "invalid request body",
		},
		{
			name:       "missing subject key",
			method:     http.MethodPost,
			body:       BeginRegistrationRequest{},
			wantStatus: http.StatusBadRequest,
			wantErr:    "subject_key is required",
		},
		{
			name:       "success",
			method:     http.MethodPost,
			body:       BeginRegistrationRequest{SubjectKey: "user-alice"},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != nil {
				if s, ok := tt.body.(string); ok {
					body = strings.NewReader(s)
				} else {
					b, _ := json.Marshal(tt.body)
					body = bytes.NewReader(b)
				}
			}

			req := httptest.NewRequest(tt.method, "/registration/begin", body)
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			env.handler.BeginRegistration(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantErr != "" {
				var errResp ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
				assert.Contains(t, errResp.Message, tt.wantErr)
			} else {
				var resp ChallengeResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				nonce, err := base64.RawURLEncoding.DecodeString(resp.Nonce)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, len(nonce), 32)
				assert.NotEmpty(t, resp.ExpiresAt)
			}
		})
	}
}

func TestHandler_FinishRegistration_InvalidInput(t *testing.T) {
	env := newHandlerEnv(t)

	tests := []struct {
		name       string
		subjectKey string
		body       string
		wantStatus int
		wantErr    string
	}{
		{
			name:       "missing subject key",
			body:       "{}",
			wantStatus: http.StatusBadRequest,
			wantErr:    "subject key header is required",
		},
		{
			name:       "invalid attestation response",
			subjectKey: "user-alice",
			body:       "not valid json",
			wantStatus: http.StatusBadRequest,
			wantErr:    "invalid attestation response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/registration/finish", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.subjectKey != "" {
				req.Header.Set(HeaderSubjectKey, tt.subjectKey)
			}
			rec := httptest.NewRecorder()

			env.handler.FinishRegistration(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var errResp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
			assert.Contains(t, errResp.Message, tt.wantErr)
		})
	}
}

func TestHandler_RegistrationFlow(t *testing.T) {
	env := newHandlerEnv(t)

	env.register(t, "user-alice")

	creds, err := env.registry.FindActiveByOwner(context.Background(), []byte("user-alice"))
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, credential.DeviceClassTouch, creds[0].DeviceClass)
}

func TestHandler_RegistrationChallengeReplay(t *testing.T) {
	env := newHandlerEnv(t)

	auth, err := ceremony.NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	ch := env.beginRegistration(t, "user-alice")
	nonce, err := base64.RawURLEncoding.DecodeString(ch.Nonce)
	require.NoError(t, err)

	parsed, err := auth.CreateRegistrationResponse(nonce, testOrigin)
	require.NoError(t, err)
	body, err := json.Marshal(parsed.Raw)
	require.NoError(t, err)

	finish := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/registration/finish", bytes.NewReader(body))
		req.Header.Set(HeaderSubjectKey, "user-alice")
		rec := httptest.NewRecorder()
		env.handler.FinishRegistration(rec, req)
		return rec
	}

	rec := finish()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Replaying the same attestation must fail: the challenge is one-shot.
	rec = finish()
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, ErrorCodeChallengeInvalid, errResp.Error)
}

func TestHandler_RegistrationCredentialLimit(t *testing.T) {
	env := newHandlerEnv(t)

	for i := 0; i < credential.MaxActivePerOwner; i++ {
		env.register(t, "user-alice")
	}

	auth, err := ceremony.NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	ch := env.beginRegistration(t, "user-alice")
	nonce, err := base64.RawURLEncoding.DecodeString(ch.Nonce)
	require.NoError(t, err)

	parsed, err := auth.CreateRegistrationResponse(nonce, testOrigin)
	require.NoError(t, err)
	body, err := json.Marshal(parsed.Raw)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/registration/finish", bytes.NewReader(body))
	req.Header.Set(HeaderSubjectKey, "user-alice")
	rec := httptest.NewRecorder()
	env.handler.FinishRegistration(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, ErrorCodeLimitExceeded, errResp.Error)
}

func TestHandler_BeginLogin(t *testing.T) {
	env := newHandlerEnv(t)
	env.register(t, "user-alice")

	rec := postJSON(t, env.handler.BeginLogin, "/login/begin", BeginLoginRequest{OwnerKey: "user-alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ChallengeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.AllowCredentials, 1)

	rec = postJSON(t, env.handler.BeginLogin, "/login/begin", BeginLoginRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_LoginFlow(t *testing.T) {
	env := newHandlerEnv(t)
	auth := env.register(t, "user-alice")

	rec := postJSON(t, env.handler.BeginLogin, "/login/begin", BeginLoginRequest{OwnerKey: "user-alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	var ch ChallengeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ch))
	nonce, err := base64.RawURLEncoding.DecodeString(ch.Nonce)
	require.NoError(t, err)

	parsed, err := auth.CreateAssertionResponse(nonce, []byte("user-alice"), testOrigin)
	require.NoError(t, err)
	body, err := json.Marshal(parsed.Raw)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/login/finish", bytes.NewReader(body))
	req.Header.Set(HeaderSubjectKey, "user-alice")
	finishRec := httptest.NewRecorder()
	env.handler.FinishLogin(finishRec, req)
	require.Equal(t, http.StatusOK, finishRec.Code, finishRec.Body.String())

	var resp AuthResponse
	require.NoError(t, json.NewDecoder(finishRec.Body).Decode(&resp))
	assert.True(t, resp.Verified)
	assert.Equal(t, "user-alice", resp.OwnerID)
	assert.NotEmpty(t, resp.Token)
}

func TestHandler_LoginForeignCredential(t *testing.T) {
	env := newHandlerEnv(t)
	aliceAuth := env.register(t, "user-alice")
	env.register(t, "user-bob")

	rec := postJSON(t, env.handler.BeginLogin, "/login/begin", BeginLoginRequest{OwnerKey: "user-bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	var ch ChallengeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ch))
	nonce, err := base64.RawURLEncoding.DecodeString(ch.Nonce)
	require.NoError(t, err)

	// Bob presenting Alice's credential must be rejected without confirming
	// the credential exists.
	parsed, err := aliceAuth.CreateAssertionResponse(nonce, []byte("user-bob"), testOrigin)
	require.NoError(t, err)
	body, err := json.Marshal(parsed.Raw)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/login/finish", bytes.NewReader(body))
	req.Header.Set(HeaderSubjectKey, "user-bob")
	finishRec := httptest.NewRecorder()
	env.handler.FinishLogin(finishRec, req)

	assert.Equal(t, http.StatusUnauthorized, finishRec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(finishRec.Body).Decode(&errResp))
	assert.Equal(t, ErrorCodeVerificationFailed, errResp.Error)
	assert.Equal(t, "verification failed", errResp.Message)
}

func TestHandler_ListCredentials(t *testing.T) {
	env := newHandlerEnv(t)
	env.register(t, "user-alice")
	env.register(t, "user-alice")

	req := httptest.NewRequest(http.MethodGet, "/credentials?owner=user-alice", nil)
	rec := httptest.NewRecorder()
	env.handler.ListCredentials(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListCredentialsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Credentials, 2)
	for _, cred := range resp.Credentials {
		assert.NotEmpty(t, cred.ID)
		assert.NotEmpty(t, cred.CreatedAt)
	}

	req = httptest.NewRequest(http.MethodGet, "/credentials", nil)
	rec = httptest.NewRecorder()
	env.handler.ListCredentials(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_DeactivateCredential(t *testing.T) {
	env := newHandlerEnv(t)
	auth := env.register(t, "user-alice")

	credID := base64.RawURLEncoding.EncodeToString(auth.CredentialID)
	rec := postJSON(t, env.handler.DeactivateCredential, "/credentials/deactivate",
		DeactivateCredentialRequest{CredentialID: credID})
	require.Equal(t, http.StatusNoContent, rec.Code)

	creds, err := env.registry.FindActiveByOwner(context.Background(), []byte("user-alice"))
	require.NoError(t, err)
	assert.Empty(t, creds)

	// Unknown credential
	rec = postJSON(t, env.handler.DeactivateCredential, "/credentials/deactivate",
		DeactivateCredentialRequest{CredentialID: base64.RawURLEncoding.EncodeToString([]byte("missing"))})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Bad encoding
	rec = postJSON(t, env.handler.DeactivateCredential, "/credentials/deactivate",
		DeactivateCredentialRequest{CredentialID: "!!!"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
