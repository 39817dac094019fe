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

package ceremony

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/onestep-auth/pkg/credential"
)

// State is the position of a ceremony instance in its lifecycle. No instance
// is persisted beyond the challenge entry; state is reconstructed from the
// challenge plus the incoming client response.
type State string

const (
	StateChallengeIssued  State = "CHALLENGE_ISSUED"
	StateResponseReceived State = "RESPONSE_RECEIVED"
	StateVerified         State = "VERIFIED"
	StateRejected         State = "REJECTED"
)

// LoginMethod tags how an owner authenticated, handed to the session issuer
// alongside the owner ID.
type LoginMethod string

const (
	// LoginMethodBiometric marks a completed WebAuthn assertion.
	LoginMethodBiometric LoginMethod = "biometric"

	// LoginMethodRegistration marks a freshly completed registration.
	LoginMethodRegistration LoginMethod = "registration"
)

// RegistrationChallenge is returned by BeginRegistration. ExcludeCredentialIDs
// lists the owner's already-registered credentials so the client authenticator
// avoids re-registering the same device.
type RegistrationChallenge struct {
	SubjectKey           string    `json:"subject_key"`
	Nonce                []byte    `json:"nonce"`
	ExpiresAt            time.Time `json:"expires_at"`
	ExcludeCredentialIDs [][]byte  `json:"exclude_credentials"`
}

// AuthenticationChallenge is returned by BeginAuthentication.
// AllowCredentialIDs lists the owner's active credentials so the client only
// offers matching authenticators.
type AuthenticationChallenge struct {
	OwnerKey           string    `json:"owner_key"`
	Nonce              []byte    `json:"nonce"`
	ExpiresAt          time.Time `json:"expires_at"`
	AllowCredentialIDs [][]byte  `json:"allow_credentials"`
}

// RegistrationResult is the outcome of a verified registration ceremony.
type RegistrationResult struct {
	State      State
	OwnerKey   string
	Credential *credential.Credential
}

// AuthenticationResult is the outcome of a verified authentication ceremony.
// OwnerKey is handed to the caller to proceed to session issuance.
type AuthenticationResult struct {
	State        State
	OwnerKey     string
	CredentialID []byte
	Method       LoginMethod
}

// SecurityEventKind classifies security-critical ceremony failures.
type SecurityEventKind string

const (
	// EventCounterRegression flags a presented signature counter lower
	// than the stored one: evidence of a cloned authenticator.
	EventCounterRegression SecurityEventKind = "counter_regression"

	// EventDuplicateCredential flags an attempt to register a credential
	// ID that already exists in the system.
	EventDuplicateCredential SecurityEventKind = "duplicate_credential"
)

// SecurityEvent describes a security-critical condition observed during a
// ceremony. Routed to the SecurityReporter with elevated severity, never
// silently downgraded to a generic failure.
type SecurityEvent struct {
	ID           string            `json:"id"`
	Kind         SecurityEventKind `json:"kind"`
	SubjectKey   string            `json:"subject_key"`
	CredentialID []byte            `json:"credential_id,omitempty"`
	Detail       string            `json:"detail"`
	ObservedAt   time.Time         `json:"observed_at"`
}

// SecurityReporter receives security-critical events. The surrounding
// platform's incident pipeline implements this; the default routes to slog
// at error level.
type SecurityReporter interface {
	Report(ctx context.Context, event SecurityEvent)
}

// SlogSecurityReporter is the default SecurityReporter, logging events at
// error level so they stand apart from ordinary rejected ceremonies.
type SlogSecurityReporter struct {
	logger *slog.Logger
}

// NewSlogSecurityReporter creates a reporter backed by the given logger.
// A nil logger falls back to slog.Default().
func NewSlogSecurityReporter(logger *slog.Logger) *SlogSecurityReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSecurityReporter{logger: logger}
}

// Report logs the event at error level.
func (r *SlogSecurityReporter) Report(ctx context.Context, event SecurityEvent) {
	r.logger.ErrorContext(ctx, "security event",
		"event_id", event.ID,
		"kind", string(event.Kind),
		"subject", event.SubjectKey,
		"detail", event.Detail)
}

// newSecurityEvent stamps a fresh event with a unique ID and timestamp.
func newSecurityEvent(kind SecurityEventKind, subjectKey string, credID []byte, detail string) SecurityEvent {
	return SecurityEvent{
		ID:           uuid.NewString(),
		Kind:         kind,
		SubjectKey:   subjectKey,
		CredentialID: credID,
		Detail:       detail,
		ObservedAt:   time.Now().UTC(),
	}
}
