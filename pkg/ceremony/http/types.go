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

// HeaderSubjectKey carries the subject (or owner) key on finish requests,
// whose bodies are raw authenticator responses.
const HeaderSubjectKey = "X-Subject-Key"

// HeaderDeviceClass carries the device class hint on registration finish.
const HeaderDeviceClass = "X-Device-Class"

// BeginRegistrationRequest is the request body for starting registration.
type BeginRegistrationRequest struct {
	// SubjectKey is the user id, or a provisional identifier during
	// registration when no user exists yet (required).
	SubjectKey string `json:"subject_key"`
}

// BeginLoginRequest is the request body for starting authentication.
type BeginLoginRequest struct {
	// OwnerKey is the account being authenticated (required).
	OwnerKey string `json:"owner_key"`
}

// ChallengeResponse is the response to a begin request. Exactly one of the
// credential ID lists is populated depending on the ceremony.
type ChallengeResponse struct {
	// Nonce is the base64url-encoded challenge nonce.
	Nonce string `json:"nonce"`

	// ExpiresAt is when the challenge stops being consumable (RFC 3339).
	ExpiresAt string `json:"expires_at"`

	// ExcludeCredentials lists base64url credential IDs the client
	// authenticator must not re-register (registration only).
	ExcludeCredentials []string `json:"exclude_credentials,omitempty"`

	// AllowCredentials lists base64url credential IDs the client may
	// offer (authentication only).
	AllowCredentials []string `json:"allow_credentials,omitempty"`
}

// AuthResponse is the response after a verified ceremony.
type AuthResponse struct {
	// Verified is true when the ceremony completed.
	Verified bool `json:"verified"`

	// Token is the session token (JWT, or base64 owner key when no
	// session issuer is configured).
	Token string `json:"token,omitempty"`

	// OwnerID is the verified account.
	OwnerID string `json:"owner_id,omitempty"`
}

// CredentialSummary is one entry in a credential listing.
type CredentialSummary struct {
	// ID is the base64url-encoded credential ID.
	ID string `json:"id"`

	// DeviceClass is the device type reported at registration.
	DeviceClass string `json:"device_class"`

	// CreatedAt and LastUsedAt are RFC 3339 timestamps; LastUsedAt is
	// empty until the first successful assertion.
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at,omitempty"`
}

// ListCredentialsResponse is the response to a credential listing.
type ListCredentialsResponse struct {
	Credentials []CredentialSummary `json:"credentials"`
}

// DeactivateCredentialRequest is the request body for credential revocation.
type DeactivateCredentialRequest struct {
	// CredentialID is the base64url-encoded credential ID (required).
	CredentialID string `json:"credential_id"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeChallengeExpired   = "challenge_expired"
	ErrorCodeChallengeInvalid   = "challenge_invalid"
	ErrorCodeVerificationFailed = "verification_failed"
	ErrorCodeRegistrationFailed = "registration_failed"
	ErrorCodeLimitExceeded      = "credential_limit_exceeded"
	ErrorCodeNotFound           = "not_found"
	ErrorCodeInternalError      = "internal_error"
)
