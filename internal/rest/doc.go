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

// Package rest provides the REST API server for the OneStep authentication
// service.
//
// The server exposes the WebAuthn ceremony engine, credential management,
// and the risk evaluation engine over HTTP.
//
// # Server Setup
//
//	engine, _ := ceremony.NewEngine(ceremony.EngineParams{
//	    Config:         &ceremony.Config{RPID: "onestep.example", RPOrigin: "https://onestep.example"},
//	    ChallengeStore: challenge.NewMemoryStore(),
//	    Registry:       registry,
//	})
//
//	server, _ := rest.NewServer(&rest.Config{
//	    Port:           8443,
//	    CeremonyEngine: engine,
//	    RiskEngine:     avv.NewEngine(avv.EngineParams{}),
//	    Registry:       registry,
//	})
//
//	// Start server
//	go server.Start()
//
//	// Graceful shutdown
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	server.Stop(ctx)
//
// # API Endpoints
//
// Health:
//   - GET /healthz - Liveness status (load balancer compatible)
//   - GET /health/live - Kubernetes liveness probe
//   - GET /health/ready - Kubernetes readiness probe
//   - GET /health/startup - Kubernetes startup probe
//
// Ceremonies and credentials (under /api/v1/auth):
//   - POST /registration/begin - Issue a registration challenge
//   - POST /registration/finish - Complete registration
//   - POST /login/begin - Issue an authentication challenge
//   - POST /login/finish - Complete authentication
//   - GET  /credentials?owner= - List an owner's active credentials
//   - POST /credentials/deactivate - Revoke a credential
//
// Risk evaluation (under /api/v1/risk):
//   - POST /check - Run a single verification check
//   - POST /batch - Run a batch and fold the verdicts
//
// Metrics:
//   - GET /metrics - Prometheus metrics (when enabled)
//
// # Request/Response Format
//
// All requests and responses use JSON with Content-Type: application/json.
// Error responses include a JSON body with error details:
//
//	{
//	  "error": "challenge_expired",
//	  "message": "challenge expired, request a new one"
//	}
//
// # Middleware
//
// The server includes the following middleware:
//   - Recovery - Recovers from panics and returns 500 errors
//   - Correlation - Propagates X-Correlation-ID for request tracing
//   - Logging - Logs all HTTP requests with timing
//   - Metrics - Records request counts and latencies
//   - CORS - Adds CORS headers for cross-origin requests
//   - Rate limiting - Per-client token bucket (when configured)
package rest
