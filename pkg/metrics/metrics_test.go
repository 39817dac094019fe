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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	// Metrics should be enabled by default
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	// Test disabling
	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	// Test enabling
	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordCeremony(t *testing.T) {
	Enable()

	// Reset counters before test
	CeremoniesTotal.Reset()

	// Record a verified registration
	RecordCeremony(CeremonyRegistration, OutcomeVerified)

	count := testutil.CollectAndCount(CeremoniesTotal)
	if count != 1 {
		t.Errorf("Expected 1 ceremony recorded, got %d", count)
	}

	// Record a rejected authentication
	RecordCeremony(CeremonyAuthentication, OutcomeRejected)

	count = testutil.CollectAndCount(CeremoniesTotal)
	if count != 2 {
		t.Errorf("Expected 2 ceremonies recorded, got %d", count)
	}
}

func TestRecordCeremonyWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	CeremoniesTotal.Reset()

	RecordCeremony(CeremonyRegistration, OutcomeVerified)

	count := testutil.CollectAndCount(CeremoniesTotal)
	if count != 0 {
		t.Errorf("Expected 0 ceremonies when disabled, got %d", count)
	}
}

func TestRecordRiskCheck(t *testing.T) {
	Enable()

	RiskChecksTotal.Reset()
	RiskCheckDuration.Reset()

	RecordRiskCheck("password_strength", "PASS", 0.0002)

	count := testutil.CollectAndCount(RiskChecksTotal)
	if count != 1 {
		t.Errorf("Expected 1 risk check recorded, got %d", count)
	}

	histCount := testutil.CollectAndCount(RiskCheckDuration)
	if histCount != 1 {
		t.Errorf("Expected 1 histogram sample, got %d", histCount)
	}

	RecordRiskCheck("device_trust", "FAIL", 0.0001)

	count = testutil.CollectAndCount(RiskChecksTotal)
	if count != 2 {
		t.Errorf("Expected 2 risk checks recorded, got %d", count)
	}
}

func TestRecordSecurityEvent(t *testing.T) {
	Enable()

	SecurityEventsTotal.Reset()

	RecordSecurityEvent("counter_regression")
	RecordSecurityEvent("counter_regression")
	RecordSecurityEvent("duplicate_credential")

	count := testutil.CollectAndCount(SecurityEventsTotal)
	if count != 2 {
		t.Errorf("Expected 2 event kinds recorded, got %d", count)
	}

	value := testutil.ToFloat64(SecurityEventsTotal.WithLabelValues("counter_regression"))
	if value != 2 {
		t.Errorf("Expected counter_regression count 2, got %f", value)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	Enable()

	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "200", 0.05)

	count := testutil.CollectAndCount(HTTPRequestsTotal)
	if count != 1 {
		t.Errorf("Expected 1 HTTP request recorded, got %d", count)
	}
}

func TestActiveConnections(t *testing.T) {
	Enable()

	ActiveConnections.Reset()

	IncrementActiveConnections(ProtocolHTTP)
	IncrementActiveConnections(ProtocolHTTP)

	value := testutil.ToFloat64(ActiveConnections.WithLabelValues(ProtocolHTTP))
	if value != 2 {
		t.Errorf("Expected 2 active connections, got %f", value)
	}

	DecrementActiveConnections(ProtocolHTTP)

	value = testutil.ToFloat64(ActiveConnections.WithLabelValues(ProtocolHTTP))
	if value != 1 {
		t.Errorf("Expected 1 active connection after decrement, got %f", value)
	}
}

func TestGauges(t *testing.T) {
	Enable()

	SetChallengesActive(7)
	if value := testutil.ToFloat64(ChallengesActive); value != 7 {
		t.Errorf("Expected 7 active challenges, got %f", value)
	}

	SetCredentialsTotal(3)
	if value := testutil.ToFloat64(CredentialsTotal); value != 3 {
		t.Errorf("Expected 3 credentials, got %f", value)
	}
}
