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
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/jeremyhahn/onestep-auth/pkg/challenge"
	"github.com/jeremyhahn/onestep-auth/pkg/credential"
	"github.com/jeremyhahn/onestep-auth/pkg/metrics"
)

// Engine drives the two WebAuthn ceremonies end to end. It is a stateless
// request handler: every verification is reconstructed from the stored
// challenge and the incoming client response, so instances are safe for
// concurrent use.
type Engine struct {
	config     *Config
	challenges challenge.Store
	creds      credential.Registry
	reporter   SecurityReporter
	logger     *slog.Logger
	configured bool
}

// EngineParams contains dependencies for creating a ceremony engine.
type EngineParams struct {
	// Config is the relying-party configuration (required).
	Config *Config

	// ChallengeStore issues and consumes ceremony challenges (required).
	ChallengeStore challenge.Store

	// Registry is the credential persistence layer (required).
	Registry credential.Registry

	// SecurityReporter receives security-critical events. If nil, a
	// slog-backed reporter is used.
	SecurityReporter SecurityReporter

	// Logger is the engine logger. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// NewEngine creates a new ceremony engine with the provided dependencies.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.ChallengeStore == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("credential registry is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := params.SecurityReporter
	if reporter == nil {
		reporter = NewSlogSecurityReporter(logger)
	}

	return &Engine{
		config:     params.Config,
		challenges: params.ChallengeStore,
		creds:      params.Registry,
		reporter:   reporter,
		logger:     logger,
		configured: true,
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// BeginRegistration issues a registration challenge for the subject and
// returns the owner's existing active credential IDs as an exclude list.
// The subject key may be a provisional identifier when no user exists yet.
func (e *Engine) BeginRegistration(ctx context.Context, subjectKey string) (*RegistrationChallenge, error) {
	if !e.configured {
		return nil, ErrNotConfigured
	}

	existing, err := e.creds.FindActiveByOwner(ctx, []byte(subjectKey))
	if err != nil {
		return nil, wrapErr("list credentials", err)
	}

	ch, err := e.challenges.Issue(ctx, subjectKey, challenge.PurposeRegister)
	if err != nil {
		return nil, wrapErr("issue challenge", err)
	}

	exclude := make([][]byte, len(existing))
	for i, cred := range existing {
		exclude[i] = cred.ID
	}

	return &RegistrationChallenge{
		SubjectKey:           subjectKey,
		Nonce:                ch.Nonce,
		ExpiresAt:            ch.ExpiresAt,
		ExcludeCredentialIDs: exclude,
	}, nil
}

// FinishRegistration validates a registration response and persists the new
// credential. Checks run in order: challenge consumption, client data type,
// origin, registration cap, public key extraction. Any failure rejects the
// ceremony with a distinguishable reason and is never retried automatically;
// the caller must request a fresh challenge.
func (e *Engine) FinishRegistration(ctx context.Context, subjectKey string, class credential.DeviceClass, response *protocol.ParsedCredentialCreationData) (*RegistrationResult, error) {
	if !e.configured {
		return nil, ErrNotConfigured
	}
	if response == nil {
		return nil, wrapErr("parse response", ErrMalformedResponse)
	}

	clientData := response.Response.CollectedClientData

	if err := e.consumeChallenge(ctx, subjectKey, challenge.PurposeRegister, clientData.Challenge); err != nil {
		return nil, e.reject("registration", err)
	}

	// The single state machine dispatches on the client data type: an
	// authentication-shaped payload sent to the registration flow is a
	// type mismatch, not a separate code path.
	if clientData.Type != protocol.CreateCeremony {
		return nil, e.reject("registration", wrapErr("client data type", ErrTypeMismatch))
	}

	if err := e.checkOrigin(ctx, clientData.Origin); err != nil {
		return nil, e.reject("registration", err)
	}

	authData := response.Response.AttestationObject.AuthData
	if authData.Flags&protocol.FlagUserPresent == 0 {
		return nil, e.reject("registration", wrapErr("authenticator flags", ErrUserPresenceRequired))
	}

	publicKey := authData.AttData.CredentialPublicKey
	if len(publicKey) == 0 {
		return nil, e.reject("registration", wrapErr("attested credential data", ErrMalformedResponse))
	}

	// The key must be a decodable COSE structure; raw byte-offset
	// extraction is not accepted.
	if _, err := webauthncose.ParsePublicKey(publicKey); err != nil {
		return nil, e.reject("registration", wrapErr("parse public key", ErrMalformedResponse))
	}

	credID := []byte(response.RawID)
	if len(credID) == 0 {
		credID = authData.AttData.CredentialID
	}

	cred, err := e.creds.Register(ctx, []byte(subjectKey), credID, publicKey, class)
	if err != nil {
		if credential.IsDuplicate(err) {
			e.reporter.Report(ctx, newSecurityEvent(EventDuplicateCredential, subjectKey, credID,
				"registration attempted with an already-registered credential id"))
			metrics.RecordSecurityEvent(string(EventDuplicateCredential))
		}
		return nil, e.reject("registration", wrapErr("register credential", err))
	}

	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.OutcomeVerified)
	e.logger.InfoContext(ctx, "registration ceremony verified",
		"subject", subjectKey,
		"device_class", string(class))

	return &RegistrationResult{
		State:      StateVerified,
		OwnerKey:   subjectKey,
		Credential: cred,
	}, nil
}

// BeginAuthentication issues an authentication challenge for the owner and
// returns the owner's active credential IDs as an allow list.
func (e *Engine) BeginAuthentication(ctx context.Context, ownerKey string) (*AuthenticationChallenge, error) {
	if !e.configured {
		return nil, ErrNotConfigured
	}

	active, err := e.creds.FindActiveByOwner(ctx, []byte(ownerKey))
	if err != nil {
		return nil, wrapErr("list credentials", err)
	}

	ch, err := e.challenges.Issue(ctx, ownerKey, challenge.PurposeAuthenticate)
	if err != nil {
		return nil, wrapErr("issue challenge", err)
	}

	allow := make([][]byte, len(active))
	for i, cred := range active {
		allow[i] = cred.ID
	}

	return &AuthenticationChallenge{
		OwnerKey:           ownerKey,
		Nonce:              ch.Nonce,
		ExpiresAt:          ch.ExpiresAt,
		AllowCredentialIDs: allow,
	}, nil
}

// FinishAuthentication validates an assertion response. Checks run in order:
// challenge consumption, client data type, origin, credential resolution,
// signature verification over authenticatorData ‖ SHA-256(clientDataJSON),
// user presence, and counter acceptance. A counter regression is escalated
// through the security reporter, not returned as a plain validation failure.
func (e *Engine) FinishAuthentication(ctx context.Context, ownerKey string, response *protocol.ParsedCredentialAssertionData) (*AuthenticationResult, error) {
	if !e.configured {
		return nil, ErrNotConfigured
	}
	if response == nil {
		return nil, wrapErr("parse response", ErrMalformedResponse)
	}

	clientData := response.Response.CollectedClientData

	if err := e.consumeChallenge(ctx, ownerKey, challenge.PurposeAuthenticate, clientData.Challenge); err != nil {
		return nil, e.reject("authentication", err)
	}

	if clientData.Type != protocol.AssertCeremony {
		return nil, e.reject("authentication", wrapErr("client data type", ErrTypeMismatch))
	}

	if err := e.checkOrigin(ctx, clientData.Origin); err != nil {
		return nil, e.reject("authentication", err)
	}

	credID := []byte(response.RawID)
	cred, err := e.creds.FindByCredentialID(ctx, credID)
	if err != nil {
		// An unknown credential and a foreign credential look identical
		// to the caller; neither reveals what the registry holds.
		return nil, e.reject("authentication", wrapErr("resolve credential", ErrUnknownCredential))
	}
	if !bytes.Equal(cred.OwnerID, []byte(ownerKey)) {
		return nil, e.reject("authentication", wrapErr("resolve credential", ErrUnknownCredential))
	}
	if !cred.Active {
		return nil, e.reject("authentication", wrapErr("resolve credential", ErrInactiveCredential))
	}

	if err := e.verifySignature(cred.PublicKey, response); err != nil {
		return nil, e.reject("authentication", err)
	}

	if response.Response.AuthenticatorData.Flags&protocol.FlagUserPresent == 0 {
		return nil, e.reject("authentication", wrapErr("authenticator flags", ErrUserPresenceRequired))
	}

	counter := response.Response.AuthenticatorData.Counter
	if err := e.creds.RecordSuccessfulAssertion(ctx, credID, counter); err != nil {
		if credential.IsCounterRegression(err) {
			e.reporter.Report(ctx, newSecurityEvent(EventCounterRegression, ownerKey, credID,
				fmt.Sprintf("assertion presented counter %d below stored counter %d", counter, cred.SignatureCounter)))
			metrics.RecordSecurityEvent(string(EventCounterRegression))
		}
		return nil, e.reject("authentication", wrapErr("record assertion", err))
	}

	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.OutcomeVerified)
	e.logger.InfoContext(ctx, "authentication ceremony verified",
		"owner", ownerKey)

	return &AuthenticationResult{
		State:        StateVerified,
		OwnerKey:     ownerKey,
		CredentialID: credID,
		Method:       LoginMethodBiometric,
	}, nil
}

// consumeChallenge decodes the nonce echoed in the client data and consumes
// the stored challenge. The challenge is one-shot: it is gone after this call
// whether or not the remaining checks pass.
func (e *Engine) consumeChallenge(ctx context.Context, subjectKey string, purpose challenge.Purpose, presented string) error {
	nonce, err := base64.RawURLEncoding.DecodeString(presented)
	if err != nil {
		return wrapErr("decode challenge", ErrMalformedResponse)
	}
	if err := e.challenges.Consume(ctx, subjectKey, purpose, nonce); err != nil {
		return wrapErr("consume challenge", err)
	}
	return nil
}

// checkOrigin compares the echoed origin against the configured relying-party
// origin with exact string equality.
func (e *Engine) checkOrigin(ctx context.Context, origin string) error {
	if origin == e.config.RPOrigin {
		return nil
	}
	if !e.config.OriginStrict() {
		e.logger.WarnContext(ctx, "origin mismatch tolerated by configuration",
			"presented", origin,
			"expected", e.config.RPOrigin)
		return nil
	}
	return wrapErr("verify origin", ErrOriginMismatch)
}

// verifySignature checks the assertion signature against the stored COSE
// public key over the concatenation the protocol defines. CPU-bound; no I/O.
func (e *Engine) verifySignature(publicKey []byte, response *protocol.ParsedCredentialAssertionData) error {
	key, err := webauthncose.ParsePublicKey(publicKey)
	if err != nil {
		return wrapErr("parse stored public key", ErrSignatureInvalid)
	}

	clientDataHash := sha256.Sum256(response.Raw.AssertionResponse.ClientDataJSON)
	signed := append([]byte{}, response.Raw.AssertionResponse.AuthenticatorData...)
	signed = append(signed, clientDataHash[:]...)

	valid, err := webauthncose.VerifySignature(key, signed, response.Response.Signature)
	if err != nil || !valid {
		return wrapErr("verify signature", ErrSignatureInvalid)
	}
	return nil
}

// reject records a rejected ceremony outcome and passes the reason through.
func (e *Engine) reject(ceremonyKind string, err error) error {
	metrics.RecordCeremony(ceremonyKind, metrics.OutcomeRejected)
	return err
}
