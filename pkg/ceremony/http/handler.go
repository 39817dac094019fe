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
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/onestep-auth/pkg/ceremony"
	"github.com/jeremyhahn/onestep-auth/pkg/challenge"
	"github.com/jeremyhahn/onestep-auth/pkg/credential"
	"github.com/jeremyhahn/onestep-auth/pkg/session"
)

// Handler provides HTTP handlers for the WebAuthn ceremonies and credential
// management. These handlers can be mounted on any HTTP router.
type Handler struct {
	engine   *ceremony.Engine
	registry credential.Registry
	issuer   *session.Issuer
	logger   *slog.Logger
}

// NewHandler creates a new ceremony HTTP handler. The session issuer is
// optional; without one, finish responses carry a base64-encoded owner key
// instead of a signed token.
func NewHandler(engine *ceremony.Engine, registry credential.Registry) *Handler {
	return &Handler{
		engine:   engine,
		registry: registry,
		logger:   slog.Default(),
	}
}

// WithSessionIssuer sets the session token issuer.
func (h *Handler) WithSessionIssuer(issuer *session.Issuer) *Handler {
	h.issuer = issuer
	return h
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginRegistration handles POST /registration/begin
//
// Request body:
//
//	{
//	    "subject_key": "user-or-provisional-id"
//	}
//
// Response: ChallengeResponse with the nonce and exclude list.
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if req.SubjectKey == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "subject_key is required")
		return
	}

	ch, err := h.engine.BeginRegistration(r.Context(), req.SubjectKey)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ChallengeResponse{
		Nonce:              base64.RawURLEncoding.EncodeToString(ch.Nonce),
		ExpiresAt:          ch.ExpiresAt.Format(time.RFC3339),
		ExcludeCredentials: encodeCredentialIDs(ch.ExcludeCredentialIDs),
	})
}

// FinishRegistration handles POST /registration/finish
//
// Header: X-Subject-Key (same key used for BeginRegistration)
// Header: X-Device-Class (optional: touch, face, security_key)
// Request body: attestation response from the authenticator
// Response: AuthResponse with token and owner ID.
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	subjectKey := r.Header.Get(HeaderSubjectKey)
	if subjectKey == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "subject key header is required")
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid attestation response")
		return
	}

	result, err := h.engine.FinishRegistration(r.Context(), subjectKey, deviceClassFrom(r), response)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	token, err := h.sessionToken(r, result.OwnerKey, ceremony.LoginMethodRegistration)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, AuthResponse{
		Verified: true,
		Token:    token,
		OwnerID:  result.OwnerKey,
	})
}

// BeginLogin handles POST /login/begin
//
// Request body:
//
//	{
//	    "owner_key": "user-id"
//	}
//
// Response: ChallengeResponse with the nonce and allow list.
func (h *Handler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if req.OwnerKey == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "owner_key is required")
		return
	}

	ch, err := h.engine.BeginAuthentication(r.Context(), req.OwnerKey)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ChallengeResponse{
		Nonce:            base64.RawURLEncoding.EncodeToString(ch.Nonce),
		ExpiresAt:        ch.ExpiresAt.Format(time.RFC3339),
		AllowCredentials: encodeCredentialIDs(ch.AllowCredentialIDs),
	})
}

// FinishLogin handles POST /login/finish
//
// Header: X-Subject-Key (owner key from BeginLogin)
// Request body: assertion response from the authenticator
// Response: AuthResponse with token and owner ID.
func (h *Handler) FinishLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	ownerKey := r.Header.Get(HeaderSubjectKey)
	if ownerKey == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "subject key header is required")
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid assertion response")
		return
	}

	result, err := h.engine.FinishAuthentication(r.Context(), ownerKey, response)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	token, err := h.sessionToken(r, result.OwnerKey, result.Method)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, AuthResponse{
		Verified: true,
		Token:    token,
		OwnerID:  result.OwnerKey,
	})
}

// ListCredentials handles GET /credentials?owner=<key>
//
// Response: ListCredentialsResponse with the owner's active credentials.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	owner := r.URL.Query().Get("owner")
	if owner == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "owner query parameter is required")
		return
	}

	creds, err := h.registry.FindActiveByOwner(r.Context(), []byte(owner))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	out := ListCredentialsResponse{Credentials: make([]CredentialSummary, len(creds))}
	for i, cred := range creds {
		summary := CredentialSummary{
			ID:          base64.RawURLEncoding.EncodeToString(cred.ID),
			DeviceClass: string(cred.DeviceClass),
			CreatedAt:   cred.CreatedAt.Format(time.RFC3339),
		}
		if !cred.LastUsedAt.IsZero() {
			summary.LastUsedAt = cred.LastUsedAt.Format(time.RFC3339)
		}
		out.Credentials[i] = summary
	}

	h.writeJSON(w, http.StatusOK, out)
}

// DeactivateCredential handles POST /credentials/deactivate
//
// Request body:
//
//	{
//	    "credential_id": "base64url-credential-id"
//	}
func (h *Handler) DeactivateCredential(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req DeactivateCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	credID, err := base64.RawURLEncoding.DecodeString(req.CredentialID)
	if err != nil || len(credID) == 0 {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid credential id encoding")
		return
	}

	if err := h.registry.Deactivate(r.Context(), credID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// sessionToken mints a session token for a verified owner, falling back to
// the encoded owner key when no issuer is configured.
func (h *Handler) sessionToken(r *http.Request, ownerKey string, method ceremony.LoginMethod) (string, error) {
	if h.issuer == nil {
		return base64.RawURLEncoding.EncodeToString([]byte(ownerKey)), nil
	}
	return h.issuer.Issue(r.Context(), ownerKey, string(method))
}

// handleServiceError maps engine and registry errors to HTTP responses.
// Security-critical conditions are reported generically: the response never
// confirms another owner's credential or names clone detection.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, challenge.ErrExpired):
		h.writeError(w, http.StatusBadRequest, ErrorCodeChallengeExpired, "challenge expired, request a new one")
	case errors.Is(err, challenge.ErrNotFound), errors.Is(err, challenge.ErrMismatch):
		h.writeError(w, http.StatusBadRequest, ErrorCodeChallengeInvalid, "challenge invalid, request a new one")
	case errors.Is(err, challenge.ErrInvalidSubject), errors.Is(err, challenge.ErrInvalidPurpose):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request")
	case errors.Is(err, credential.ErrLimitExceeded):
		h.writeError(w, http.StatusConflict, ErrorCodeLimitExceeded, "credential limit reached, deactivate a device first")
	case errors.Is(err, credential.ErrDuplicateCredential):
		h.writeError(w, http.StatusBadRequest, ErrorCodeRegistrationFailed, "registration failed")
	case errors.Is(err, credential.ErrCounterRegression),
		errors.Is(err, ceremony.ErrSignatureInvalid),
		errors.Is(err, ceremony.ErrUnknownCredential),
		errors.Is(err, ceremony.ErrInactiveCredential),
		errors.Is(err, ceremony.ErrUserPresenceRequired):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed")
	case errors.Is(err, ceremony.ErrOriginMismatch),
		errors.Is(err, ceremony.ErrTypeMismatch),
		errors.Is(err, ceremony.ErrMalformedResponse):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid authenticator response")
	case errors.Is(err, credential.ErrNotFound):
		h.writeError(w, http.StatusNotFound, ErrorCodeNotFound, "credential not found")
	case errors.Is(err, credential.ErrInvalidCredential):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request")
	default:
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}

func encodeCredentialIDs(ids [][]byte) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = base64.RawURLEncoding.EncodeToString(id)
	}
	return out
}

func deviceClassFrom(r *http.Request) credential.DeviceClass {
	switch credential.DeviceClass(r.Header.Get(HeaderDeviceClass)) {
	case credential.DeviceClassTouch:
		return credential.DeviceClassTouch
	case credential.DeviceClassFace:
		return credential.DeviceClassFace
	case credential.DeviceClassSecurity:
		return credential.DeviceClassSecurity
	default:
		return credential.DeviceClassUnknown
	}
}
