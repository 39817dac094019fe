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
	"fmt"
	"net"
	"strings"
	"time"
)

// PasscodeLength is the only accepted passcode format: exactly six digits.
const PasscodeLength = 6

// DefaultDenylist holds commonly-chosen passcodes that are rejected outright.
var DefaultDenylist = []string{
	"123456", "654321", "111111", "000000", "121212", "112233",
	"123123", "123321", "159753", "222222", "333333", "444444",
	"555555", "666666", "777777", "888888", "999999", "102030",
}

// checkPasscodeStrength scores a six-digit passcode. Format violations and
// denylisted values are rejected outright with score 0; otherwise scoring is
// additive around a base of 50 and any negative finding forces FAIL.
func (e *Engine) checkPasscodeStrength(input string) Verdict {
	v := Verdict{CheckType: CheckPasscodeStrength}

	if len(input) != PasscodeLength || !allDigits(input) {
		v.Result = ResultFail
		v.Score = 0
		v.Reasons = []string{"passcode must be exactly 6 digits"}
		return v
	}

	if e.denylisted(input) {
		v.Result = ResultFail
		v.Score = 0
		v.Reasons = []string{"passcode is too commonly used, choose a less predictable code"}
		return v
	}

	score := 50
	negative := false

	// Correct length and format
	score += 20

	if sequentialRun(input) {
		score -= 30
		negative = true
		v.Reasons = append(v.Reasons, "avoid sequential digits")
	}

	distinct := distinctDigits(input)
	if distinct == 1 {
		score -= 40
		negative = true
		v.Reasons = append(v.Reasons, "avoid repeating a single digit")
	}
	if distinct >= 4 {
		score += 20
	}
	if distinct <= 2 {
		score -= 20
		negative = true
		v.Reasons = append(v.Reasons, "use more distinct digits")
	}

	v.Score = clampScore(score)
	if v.Score < 60 || negative {
		v.Result = ResultFail
	} else {
		v.Result = ResultPass
	}
	return v
}

// checkPasscodePersonalData fails outright when the passcode contains any
// 4-6 digit sequence derivable from the subject's date of birth or phone
// number.
func (e *Engine) checkPasscodePersonalData(input string, signals Signals) Verdict {
	v := Verdict{CheckType: CheckPasscodePersonalData}

	if len(input) != PasscodeLength || !allDigits(input) {
		v.Result = ResultFail
		v.Score = 0
		v.Reasons = []string{"passcode must be exactly 6 digits"}
		return v
	}

	for _, candidate := range personalDataCandidates(signals.DateOfBirth, signals.PhoneNumber) {
		if strings.Contains(input, candidate) {
			v.Result = ResultFail
			v.Score = 0
			v.Reasons = []string{"passcode must not be derived from your date of birth or phone number"}
			return v
		}
	}

	v.Result = ResultPass
	v.Score = 100
	return v
}

// checkBiometricQuality classifies a caller-measured biometric sample
// quality. Low-quality captures are rejected so a noisy enrollment never
// becomes a weak credential.
func (e *Engine) checkBiometricQuality(signals Signals) Verdict {
	v := Verdict{CheckType: CheckBiometricQuality, Score: clampScore(signals.BiometricQuality)}

	switch {
	case v.Score < 40:
		v.Result = ResultFail
		v.Reasons = []string{"biometric sample quality too low, recapture in better conditions"}
	case v.Score < 70:
		v.Result = ResultWarning
		v.Reasons = []string{"biometric sample quality is marginal"}
	default:
		v.Result = ResultPass
	}
	return v
}

// botSignatures are user-agent fragments that identify automated clients.
var botSignatures = []string{
	"bot", "crawler", "spider", "headless", "phantomjs", "selenium",
	"puppeteer", "curl/", "wget/", "python-requests",
}

// checkDeviceTrust looks up the device fingerprint against the platform's
// known-device table. A bot user-agent fails regardless of fingerprint.
func (e *Engine) checkDeviceTrust(fingerprint string, signals Signals) Verdict {
	v := Verdict{CheckType: CheckDeviceTrust}

	ua := strings.ToLower(signals.UserAgent)
	for _, sig := range botSignatures {
		if strings.Contains(ua, sig) {
			v.Result = ResultFail
			v.Score = 0
			v.Reasons = []string{"automated client signatures detected"}
			return v
		}
	}

	trusted, known := signals.KnownDevices[fingerprint]
	switch {
	case !known || fingerprint == "":
		v.Result = ResultWarning
		v.Score = 50
		v.Reasons = []string{"unrecognized device"}
	case !trusted:
		v.Result = ResultWarning
		v.Score = 30
		v.Reasons = []string{"device has not been marked trusted"}
	default:
		v.Result = ResultPass
		v.Score = 90
	}
	return v
}

// checkBehavioralPattern compares the attempt hour against the subject's
// historical hour-of-day distribution and weighs recent failed attempts.
func (e *Engine) checkBehavioralPattern(signals Signals) Verdict {
	v := Verdict{CheckType: CheckBehavioralPattern}

	loginAt := signals.LoginAt
	if loginAt.IsZero() {
		loginAt = e.now()
	}

	score := 90

	total := 0
	for _, n := range signals.HourHistogram {
		total += n
	}
	if total > 0 && signals.HourHistogram[loginAt.Hour()] == 0 {
		score -= 30
		v.Reasons = append(v.Reasons, "login at an unusual hour for this account")
	}

	forceWarning := false
	if signals.FailedAttempts24h >= 4 {
		score -= 25
		forceWarning = true
		v.Reasons = append(v.Reasons, "multiple recent failed attempts")
	}

	v.Score = clampScore(score)
	switch {
	case v.Score < 40:
		v.Result = ResultFail
	case v.Score < 70 || forceWarning:
		v.Result = ResultWarning
	default:
		v.Result = ResultPass
	}
	return v
}

// checkNetworkReputation scores the client network origin. Private and
// loopback ranges short-circuit to PASS; public addresses consult the
// reputation collaborator, and its absence degrades to WARNING instead of
// blocking authentication.
func (e *Engine) checkNetworkReputation(ctx context.Context, addr string) Verdict {
	v := Verdict{CheckType: CheckNetworkReputation}

	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		v.Result = ResultWarning
		v.Score = 50
		v.Reasons = []string{"network origin could not be parsed"}
		return v
	}

	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
		v.Result = ResultPass
		v.Score = 80
		v.Reasons = []string{"internal network origin"}
		return v
	}

	if e.reputation == nil {
		v.Result = ResultWarning
		v.Score = 60
		v.Reasons = []string{"network reputation unavailable"}
		return v
	}

	score, err := e.reputation.Lookup(ctx, ip.String())
	if err != nil {
		v.Result = ResultWarning
		v.Score = 60
		v.Reasons = []string{"network reputation unavailable"}
		return v
	}

	v.Score = clampScore(score)
	switch {
	case v.Score < 30:
		v.Result = ResultFail
		v.Reasons = []string{"network origin has a hostile reputation"}
	case v.Score < 70:
		v.Result = ResultWarning
		v.Reasons = []string{"network origin has a mixed reputation"}
	default:
		v.Result = ResultPass
	}
	return v
}

// Request-frequency thresholds per network origin.
const (
	maxAttemptsPerHour      = 10
	warnAttemptsPerHour     = 5
	maxFailedAttemptsPerDay = 20
)

// checkRequestFrequency applies fixed attempt-rate thresholds to the
// caller-supplied trailing counts for the requesting network origin.
func (e *Engine) checkRequestFrequency(signals Signals) Verdict {
	v := Verdict{CheckType: CheckRequestFrequency}

	switch {
	case signals.FailedAttempts24h > maxFailedAttemptsPerDay:
		v.Result = ResultFail
		v.Score = 0
		v.Reasons = []string{fmt.Sprintf("more than %d failed attempts in 24 hours", maxFailedAttemptsPerDay)}
	case signals.AttemptsLastHour > maxAttemptsPerHour:
		v.Result = ResultFail
		v.Score = 0
		v.Reasons = []string{fmt.Sprintf("more than %d attempts in the last hour", maxAttemptsPerHour)}
	case signals.AttemptsLastHour > warnAttemptsPerHour:
		v.Result = ResultWarning
		v.Score = 40
		v.Reasons = []string{"elevated attempt rate from this origin"}
	default:
		v.Result = ResultPass
		v.Score = 90
	}
	return v
}

// checkDeviceFingerprint passes when the fingerprint is in the subject's own
// trusted set, otherwise warns with a new-device hint.
func (e *Engine) checkDeviceFingerprint(fingerprint string, signals Signals) Verdict {
	v := Verdict{CheckType: CheckDeviceFingerprint}

	if fingerprint != "" {
		for _, trusted := range signals.TrustedFingerprints {
			if trusted == fingerprint {
				v.Result = ResultPass
				v.Score = 95
				return v
			}
		}
	}

	v.Result = ResultWarning
	v.Score = 50
	v.Reasons = []string{"new device, verify it is yours"}
	return v
}

func (e *Engine) denylisted(passcode string) bool {
	for _, deny := range e.denylist {
		if passcode == deny {
			return true
		}
	}
	return false
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// sequentialRun reports whether every adjacent digit pair ascends or
// descends by exactly one.
func sequentialRun(s string) bool {
	ascending, descending := true, true
	for i := 1; i < len(s); i++ {
		if s[i] != s[i-1]+1 {
			ascending = false
		}
		if s[i] != s[i-1]-1 {
			descending = false
		}
	}
	return ascending || descending
}

func distinctDigits(s string) int {
	var seen [10]bool
	count := 0
	for _, r := range s {
		d := r - '0'
		if !seen[d] {
			seen[d] = true
			count++
		}
	}
	return count
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// personalDataCandidates derives the 4-6 digit sequences a subject might
// reuse from their date of birth or phone number: day/month/year pieces in
// both orderings with short and long years, plus every 4-6 digit window of
// the phone number.
func personalDataCandidates(dob time.Time, phone string) []string {
	var candidates []string

	if !dob.IsZero() {
		dd := fmt.Sprintf("%02d", dob.Day())
		mm := fmt.Sprintf("%02d", int(dob.Month()))
		yyyy := fmt.Sprintf("%04d", dob.Year())
		yy := yyyy[2:]

		candidates = append(candidates,
			yyyy,
			dd+mm, mm+dd,
			dd+yy, yy+dd,
			mm+yy, yy+mm,
			dd+mm+yy, yy+mm+dd,
			mm+dd+yy, yy+dd+mm,
			mm+yyyy, yyyy+mm,
		)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	for size := 4; size <= 6; size++ {
		for i := 0; i+size <= len(digits); i++ {
			candidates = append(candidates, digits[i:i+size])
		}
	}

	return candidates
}
