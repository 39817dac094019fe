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

package avv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluate(t *testing.T, engine *Engine, checkType CheckType, input string, signals Signals) Verdict {
	t.Helper()
	verdict, err := engine.Evaluate(context.Background(), Request{
		CheckType: checkType,
		Input:     input,
		Signals:   signals,
	})
	require.NoError(t, err)
	return verdict
}

func TestPasscodeStrength(t *testing.T) {
	engine := NewEngine(EngineParams{})

	tests := []struct {
		name       string
		passcode   string
		wantResult Result
		wantScore  int
		minScore   int
	}{
		{name: "sequential and denylisted", passcode: "123456", wantResult: ResultFail, wantScore: 0},
		{name: "descending sequential denylisted", passcode: "654321", wantResult: ResultFail, wantScore: 0},
		{name: "single repeated digit denylisted", passcode: "111111", wantResult: ResultFail, wantScore: 0},
		{name: "strong six distinct digits", passcode: "482917", wantResult: ResultPass, minScore: 80},
		{name: "too short", passcode: "4829", wantResult: ResultFail, wantScore: 0},
		{name: "non numeric", passcode: "48a917", wantResult: ResultFail, wantScore: 0},
		{name: "empty", passcode: "", wantResult: ResultFail, wantScore: 0},
		{name: "sequential not denylisted", passcode: "345678", wantResult: ResultFail},
		{name: "two distinct digits", passcode: "454545", wantResult: ResultFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := evaluate(t, engine, CheckPasscodeStrength, tt.passcode, Signals{})
			assert.Equal(t, tt.wantResult, verdict.Result)
			if tt.minScore > 0 {
				assert.GreaterOrEqual(t, verdict.Score, tt.minScore)
			} else {
				assert.Equal(t, tt.wantScore, verdict.Score)
			}
			if tt.wantResult == ResultFail {
				assert.NotEmpty(t, verdict.Reasons)
			}
		})
	}
}

func TestPasscodeStrengthCustomDenylist(t *testing.T) {
	engine := NewEngine(EngineParams{Denylist: []string{"482917"}})

	verdict := evaluate(t, engine, CheckPasscodeStrength, "482917", Signals{})
	assert.Equal(t, ResultFail, verdict.Result)
	assert.Zero(t, verdict.Score)
}

func TestPasscodePersonalData(t *testing.T) {
	engine := NewEngine(EngineParams{})
	dob := time.Date(1990, time.May, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		passcode   string
		signals    Signals
		wantResult Result
	}{
		{
			name:       "day month short year",
			passcode:   "150590",
			signals:    Signals{DateOfBirth: dob},
			wantResult: ResultFail,
		},
		{
			name:       "short year month day",
			passcode:   "900515",
			signals:    Signals{DateOfBirth: dob},
			wantResult: ResultFail,
		},
		{
			name:       "contains birth year",
			passcode:   "199021",
			signals:    Signals{DateOfBirth: dob},
			wantResult: ResultFail,
		},
		{
			name:       "phone number window",
			passcode:   "867530",
			signals:    Signals{PhoneNumber: "+1 (555) 867-5309"},
			wantResult: ResultFail,
		},
		{
			name:       "unrelated passcode",
			passcode:   "482917",
			signals:    Signals{DateOfBirth: dob, PhoneNumber: "+1 (555) 867-5309"},
			wantResult: ResultPass,
		},
		{
			name:       "no personal data supplied",
			passcode:   "482917",
			signals:    Signals{},
			wantResult: ResultPass,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := evaluate(t, engine, CheckPasscodePersonalData, tt.passcode, tt.signals)
			assert.Equal(t, tt.wantResult, verdict.Result)
			if tt.wantResult == ResultFail {
				assert.Zero(t, verdict.Score)
			}
		})
	}
}

func TestBiometricQuality(t *testing.T) {
	engine := NewEngine(EngineParams{})

	verdict := evaluate(t, engine, CheckBiometricQuality, "", Signals{BiometricQuality: 20})
	assert.Equal(t, ResultFail, verdict.Result)

	verdict = evaluate(t, engine, CheckBiometricQuality, "", Signals{BiometricQuality: 55})
	assert.Equal(t, ResultWarning, verdict.Result)

	verdict = evaluate(t, engine, CheckBiometricQuality, "", Signals{BiometricQuality: 92})
	assert.Equal(t, ResultPass, verdict.Result)
	assert.Equal(t, 92, verdict.Score)
}

func TestDeviceTrust(t *testing.T) {
	engine := NewEngine(EngineParams{})
	known := map[string]bool{
		"fp-trusted":   true,
		"fp-untrusted": false,
	}

	tests := []struct {
		name        string
		fingerprint string
		signals     Signals
		wantResult  Result
		wantScore   int
	}{
		{
			name:        "trusted device",
			fingerprint: "fp-trusted",
			signals:     Signals{KnownDevices: known, UserAgent: "Mozilla/5.0 (iPhone)"},
			wantResult:  ResultPass,
			wantScore:   90,
		},
		{
			name:        "known but untrusted",
			fingerprint: "fp-untrusted",
			signals:     Signals{KnownDevices: known},
			wantResult:  ResultWarning,
			wantScore:   30,
		},
		{
			name:        "unknown device",
			fingerprint: "fp-new",
			signals:     Signals{KnownDevices: known},
			wantResult:  ResultWarning,
			wantScore:   50,
		},
		{
			name:        "bot user agent overrides trusted fingerprint",
			fingerprint: "fp-trusted",
			signals:     Signals{KnownDevices: known, UserAgent: "Mozilla/5.0 HeadlessChrome/120.0"},
			wantResult:  ResultFail,
			wantScore:   0,
		},
		{
			name:        "curl client",
			fingerprint: "fp-new",
			signals:     Signals{UserAgent: "curl/8.4.0"},
			wantResult:  ResultFail,
			wantScore:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := evaluate(t, engine, CheckDeviceTrust, tt.fingerprint, tt.signals)
			assert.Equal(t, tt.wantResult, verdict.Result)
			assert.Equal(t, tt.wantScore, verdict.Score)
		})
	}
}

func TestBehavioralPattern(t *testing.T) {
	loginAt := time.Date(2025, time.March, 10, 3, 0, 0, 0, time.UTC)

	var daytime [24]int
	for h := 8; h <= 22; h++ {
		daytime[h] = 5
	}

	engine := NewEngine(EngineParams{})

	t.Run("typical hour", func(t *testing.T) {
		var hist [24]int
		hist[3] = 10
		verdict := evaluate(t, engine, CheckBehavioralPattern, "", Signals{
			LoginAt:       loginAt,
			HourHistogram: hist,
		})
		assert.Equal(t, ResultPass, verdict.Result)
	})

	t.Run("unusual hour", func(t *testing.T) {
		verdict := evaluate(t, engine, CheckBehavioralPattern, "", Signals{
			LoginAt:       loginAt,
			HourHistogram: daytime,
		})
		assert.Equal(t, ResultWarning, verdict.Result)
		assert.NotEmpty(t, verdict.Reasons)
	})

	t.Run("no history is neutral", func(t *testing.T) {
		verdict := evaluate(t, engine, CheckBehavioralPattern, "", Signals{LoginAt: loginAt})
		assert.Equal(t, ResultPass, verdict.Result)
	})

	t.Run("recent failures force warning", func(t *testing.T) {
		var hist [24]int
		hist[3] = 10
		verdict := evaluate(t, engine, CheckBehavioralPattern, "", Signals{
			LoginAt:           loginAt,
			HourHistogram:     hist,
			FailedAttempts24h: 4,
		})
		assert.Equal(t, ResultWarning, verdict.Result)
	})

	t.Run("unusual hour plus failures", func(t *testing.T) {
		verdict := evaluate(t, engine, CheckBehavioralPattern, "", Signals{
			LoginAt:           loginAt,
			HourHistogram:     daytime,
			FailedAttempts24h: 6,
		})
		assert.Equal(t, ResultFail, verdict.Result)
	})
}

// stubReputation returns a fixed score or error.
type stubReputation struct {
	score int
	err   error
}

func (s *stubReputation) Lookup(_ context.Context, _ string) (int, error) {
	return s.score, s.err
}

func TestNetworkReputation(t *testing.T) {
	t.Run("loopback short-circuits", func(t *testing.T) {
		engine := NewEngine(EngineParams{})
		verdict := evaluate(t, engine, CheckNetworkReputation, "127.0.0.1", Signals{})
		assert.Equal(t, ResultPass, verdict.Result)
	})

	t.Run("private range short-circuits", func(t *testing.T) {
		engine := NewEngine(EngineParams{Reputation: &stubReputation{score: 0}})
		verdict := evaluate(t, engine, CheckNetworkReputation, "10.1.2.3", Signals{})
		assert.Equal(t, ResultPass, verdict.Result)
	})

	t.Run("missing collaborator degrades to warning", func(t *testing.T) {
		engine := NewEngine(EngineParams{})
		verdict := evaluate(t, engine, CheckNetworkReputation, "203.0.113.9", Signals{})
		assert.Equal(t, ResultWarning, verdict.Result)
	})

	t.Run("collaborator error degrades to warning", func(t *testing.T) {
		engine := NewEngine(EngineParams{Reputation: &stubReputation{err: errors.New("timeout")}})
		verdict := evaluate(t, engine, CheckNetworkReputation, "203.0.113.9", Signals{})
		assert.Equal(t, ResultWarning, verdict.Result)
	})

	t.Run("hostile reputation fails", func(t *testing.T) {
		engine := NewEngine(EngineParams{Reputation: &stubReputation{score: 5}})
		verdict := evaluate(t, engine, CheckNetworkReputation, "203.0.113.9", Signals{})
		assert.Equal(t, ResultFail, verdict.Result)
	})

	t.Run("clean reputation passes", func(t *testing.T) {
		engine := NewEngine(EngineParams{Reputation: &stubReputation{score: 88}})
		verdict := evaluate(t, engine, CheckNetworkReputation, "203.0.113.9", Signals{})
		assert.Equal(t, ResultPass, verdict.Result)
		assert.Equal(t, 88, verdict.Score)
	})

	t.Run("garbage address warns", func(t *testing.T) {
		engine := NewEngine(EngineParams{})
		verdict := evaluate(t, engine, CheckNetworkReputation, "not-an-ip", Signals{})
		assert.Equal(t, ResultWarning, verdict.Result)
	})
}

func TestRequestFrequency(t *testing.T) {
	engine := NewEngine(EngineParams{})

	tests := []struct {
		name       string
		signals    Signals
		wantResult Result
	}{
		{name: "quiet origin", signals: Signals{AttemptsLastHour: 2}, wantResult: ResultPass},
		{name: "elevated rate", signals: Signals{AttemptsLastHour: 6}, wantResult: ResultWarning},
		{name: "hourly limit exceeded", signals: Signals{AttemptsLastHour: 11}, wantResult: ResultFail},
		{name: "daily failure limit exceeded", signals: Signals{AttemptsLastHour: 1, FailedAttempts24h: 21}, wantResult: ResultFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := evaluate(t, engine, CheckRequestFrequency, "", tt.signals)
			assert.Equal(t, tt.wantResult, verdict.Result)
		})
	}
}

func TestDeviceFingerprint(t *testing.T) {
	engine := NewEngine(EngineParams{})
	signals := Signals{TrustedFingerprints: []string{"fp-1", "fp-2"}}

	verdict := evaluate(t, engine, CheckDeviceFingerprint, "fp-2", signals)
	assert.Equal(t, ResultPass, verdict.Result)
	assert.Equal(t, 95, verdict.Score)

	verdict = evaluate(t, engine, CheckDeviceFingerprint, "fp-9", signals)
	assert.Equal(t, ResultWarning, verdict.Result)
	assert.Equal(t, 50, verdict.Score)
	assert.Contains(t, verdict.Reasons[0], "new device")

	verdict = evaluate(t, engine, CheckDeviceFingerprint, "", Signals{})
	assert.Equal(t, ResultWarning, verdict.Result)
}

func TestPersonalDataCandidates(t *testing.T) {
	dob := time.Date(1990, time.May, 15, 0, 0, 0, 0, time.UTC)
	candidates := personalDataCandidates(dob, "555-0142")

	assert.Contains(t, candidates, "150590")
	assert.Contains(t, candidates, "900515")
	assert.Contains(t, candidates, "1990")
	assert.Contains(t, candidates, "1505")
	assert.Contains(t, candidates, "550142")
	assert.NotContains(t, candidates, "15")

	assert.Empty(t, personalDataCandidates(time.Time{}, ""))
}
