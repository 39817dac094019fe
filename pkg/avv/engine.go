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
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/onestep-auth/pkg/metrics"
)

// WarnThreshold is the batch mean score below which a batch without any
// failing check still downgrades to WARNING.
const WarnThreshold = 70

// ErrUnknownCheckType is returned when a request names a check type outside
// the closed set.
var ErrUnknownCheckType = errors.New("unknown check type")

// Engine evaluates risk checks. Instances are immutable after construction
// and safe for concurrent use.
type Engine struct {
	denylist   []string
	reputation Reputation
	audit      AuditSink
	logger     *slog.Logger
	now        func() time.Time
}

// EngineParams contains dependencies for creating a risk engine. All fields
// are optional; zero values select the defaults.
type EngineParams struct {
	// Denylist replaces the default list of commonly-chosen passcodes.
	Denylist []string

	// Reputation scores public network origins. When nil, the network
	// reputation check degrades to WARNING for public addresses.
	Reputation Reputation

	// AuditSink receives evaluated verdicts. When nil, verdicts are not
	// recorded.
	AuditSink AuditSink

	// Logger is the engine logger. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// NewEngine creates a risk engine with the provided dependencies.
func NewEngine(params EngineParams) *Engine {
	denylist := params.Denylist
	if denylist == nil {
		denylist = DefaultDenylist
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		denylist:   denylist,
		reputation: params.Reputation,
		audit:      params.AuditSink,
		logger:     logger,
		now:        now,
	}
}

// Evaluate runs a single check and returns its verdict. An unknown check
// type is an error; all expected risk outcomes, including FAIL, come back as
// verdicts.
func (e *Engine) Evaluate(ctx context.Context, req Request) (Verdict, error) {
	if !req.CheckType.Valid() {
		return Verdict{}, ErrUnknownCheckType
	}
	verdict := e.run(ctx, req)
	e.recordVerdict(ctx, req.Signals.SubjectKey, verdict)
	return verdict, nil
}

// EvaluateBatch runs every requested check and folds the verdicts: FAIL if
// any check failed, WARNING if the mean score is below WarnThreshold, PASS
// otherwise. A check that panics, or a request naming an unknown check type,
// degrades to WARNING rather than aborting the batch.
func (e *Engine) EvaluateBatch(ctx context.Context, reqs []Request) BatchVerdict {
	batch := BatchVerdict{
		Result:   ResultPass,
		Score:    100,
		Verdicts: make([]Verdict, 0, len(reqs)),
	}
	if len(reqs) == 0 {
		return batch
	}

	seen := make(map[string]struct{})
	total := 0
	failed := false

	for _, req := range reqs {
		verdict := e.run(ctx, req)
		e.recordVerdict(ctx, req.Signals.SubjectKey, verdict)

		batch.Verdicts = append(batch.Verdicts, verdict)
		total += verdict.Score
		if verdict.Result == ResultFail {
			failed = true
		}
		for _, reason := range verdict.Reasons {
			if _, dup := seen[reason]; dup {
				continue
			}
			seen[reason] = struct{}{}
			batch.Reasons = append(batch.Reasons, reason)
		}
	}

	batch.Score = total / len(reqs)
	switch {
	case failed:
		batch.Result = ResultFail
	case batch.Score < WarnThreshold:
		batch.Result = ResultWarning
	default:
		batch.Result = ResultPass
	}
	return batch
}

// run dispatches one check with panic containment: a defect inside a single
// heuristic degrades that check to WARNING instead of blocking all
// authentication.
func (e *Engine) run(ctx context.Context, req Request) (verdict Verdict) {
	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "risk check panicked",
				"check", string(req.CheckType),
				"panic", r)
			verdict = Verdict{
				CheckType: req.CheckType,
				Result:    ResultWarning,
				Score:     50,
				Reasons:   []string{"check temporarily unavailable"},
			}
		}
		metrics.RecordRiskCheck(string(req.CheckType), string(verdict.Result), e.now().Sub(start).Seconds())
	}()

	switch req.CheckType {
	case CheckPasscodeStrength:
		return e.checkPasscodeStrength(req.Input)
	case CheckPasscodePersonalData:
		return e.checkPasscodePersonalData(req.Input, req.Signals)
	case CheckBiometricQuality:
		return e.checkBiometricQuality(req.Signals)
	case CheckDeviceTrust:
		return e.checkDeviceTrust(req.Input, req.Signals)
	case CheckBehavioralPattern:
		return e.checkBehavioralPattern(req.Signals)
	case CheckNetworkReputation:
		return e.checkNetworkReputation(ctx, req.Input)
	case CheckRequestFrequency:
		return e.checkRequestFrequency(req.Signals)
	case CheckDeviceFingerprint:
		return e.checkDeviceFingerprint(req.Input, req.Signals)
	default:
		return Verdict{
			CheckType: req.CheckType,
			Result:    ResultWarning,
			Score:     50,
			Reasons:   []string{"check temporarily unavailable"},
		}
	}
}

// recordVerdict hands the verdict to the audit sink. Best-effort: sink
// failures are logged and otherwise ignored.
func (e *Engine) recordVerdict(ctx context.Context, subjectKey string, verdict Verdict) {
	if e.audit == nil {
		return
	}
	entry := AuditEntry{
		ID:          uuid.NewString(),
		SubjectKey:  subjectKey,
		Verdict:     verdict,
		EvaluatedAt: e.now().UTC(),
	}
	if err := e.audit.Record(ctx, entry); err != nil {
		e.logger.WarnContext(ctx, "risk verdict audit failed",
			"check", string(verdict.CheckType),
			"error", err)
	}
}
