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

// Package avv implements the Auto-Verification & Validation risk engine:
// pure, deterministic checks over passcodes, devices, and contextual signals
// that produce pass/warn/fail verdicts before authentication is allowed to
// succeed. The engine holds no mutable state of its own; every check runs
// against read-only signals supplied by the caller.
package avv

import (
	"context"
	"time"
)

// CheckType identifies one risk heuristic. The set is closed; requests
// naming any other type are rejected.
type CheckType string

const (
	CheckPasscodeStrength     CheckType = "passcode_strength"
	CheckPasscodePersonalData CheckType = "passcode_personal_data"
	CheckBiometricQuality     CheckType = "biometric_quality"
	CheckDeviceTrust          CheckType = "device_trust"
	CheckBehavioralPattern    CheckType = "behavioral_pattern"
	CheckNetworkReputation    CheckType = "network_reputation"
	CheckRequestFrequency     CheckType = "request_frequency"
	CheckDeviceFingerprint    CheckType = "device_fingerprint"
)

// Valid reports whether the check type belongs to the closed set.
func (c CheckType) Valid() bool {
	switch c {
	case CheckPasscodeStrength, CheckPasscodePersonalData, CheckBiometricQuality,
		CheckDeviceTrust, CheckBehavioralPattern, CheckNetworkReputation,
		CheckRequestFrequency, CheckDeviceFingerprint:
		return true
	}
	return false
}

// Result is the outcome class of a check or batch.
type Result string

const (
	ResultPass    Result = "PASS"
	ResultWarning Result = "WARNING"
	ResultFail    Result = "FAIL"
)

// Verdict is the outcome of a single check. Verdicts are ephemeral; durable
// storage is the audit sink's concern.
type Verdict struct {
	CheckType CheckType `json:"check_type"`
	Result    Result    `json:"result"`
	Score     int       `json:"score"`
	Reasons   []string  `json:"reasons,omitempty"`
}

// BatchVerdict folds a set of verdicts: FAIL if any check failed, WARNING if
// the mean score falls below the warning threshold, PASS otherwise. Reasons
// is the de-duplicated union of every check's reasons, in first-seen order.
type BatchVerdict struct {
	Result   Result    `json:"result"`
	Score    int       `json:"score"`
	Reasons  []string  `json:"reasons,omitempty"`
	Verdicts []Verdict `json:"verdicts"`
}

// Signals is the read-only context a caller supplies alongside a check
// request. Only the fields relevant to the requested check type are
// consulted; the rest may stay zero.
type Signals struct {
	// SubjectKey identifies the account under evaluation.
	SubjectKey string `json:"subject_key,omitempty"`

	// DateOfBirth and PhoneNumber feed the personal-data check.
	DateOfBirth time.Time `json:"date_of_birth,omitempty"`
	PhoneNumber string    `json:"phone_number,omitempty"`

	// BiometricQuality is the caller-measured sample quality, 0-100.
	BiometricQuality int `json:"biometric_quality,omitempty"`

	// UserAgent is the raw client user-agent header.
	UserAgent string `json:"user_agent,omitempty"`

	// KnownDevices maps device fingerprints the platform has seen before
	// to whether each is marked trusted.
	KnownDevices map[string]bool `json:"known_devices,omitempty"`

	// TrustedFingerprints is the subject's own trusted-device set.
	TrustedFingerprints []string `json:"trusted_fingerprints,omitempty"`

	// LoginAt is the attempt timestamp; zero means "now".
	LoginAt time.Time `json:"login_at,omitempty"`

	// HourHistogram counts the subject's historical logins per hour of day.
	HourHistogram [24]int `json:"hour_histogram,omitempty"`

	// FailedAttempts24h counts the subject's failed attempts in the
	// trailing 24 hours.
	FailedAttempts24h int `json:"failed_attempts_24h,omitempty"`

	// AttemptsLastHour counts attempts from the same network origin in
	// the trailing hour.
	AttemptsLastHour int `json:"attempts_last_hour,omitempty"`
}

// Request names a check to run, its primary input (passcode, fingerprint, or
// network address depending on the check), and the surrounding signals.
type Request struct {
	CheckType CheckType `json:"check_type"`
	Input     string    `json:"input"`
	Signals   Signals   `json:"context"`
}

// Reputation scores a public network address, 0 (hostile) to 100 (clean).
// Implemented by an external collaborator; the engine tolerates its absence.
type Reputation interface {
	Lookup(ctx context.Context, addr string) (int, error)
}

// AuditEntry is one evaluated verdict handed to the audit sink.
type AuditEntry struct {
	ID          string    `json:"id"`
	SubjectKey  string    `json:"subject_key"`
	Verdict     Verdict   `json:"verdict"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// AuditSink receives evaluated verdicts for durable storage. Recording is
// best-effort: a sink failure never alters the verdict returned to the
// caller.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}
