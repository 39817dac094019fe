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

// Package http provides composable HTTP handlers for the WebAuthn ceremony
// engine and credential management.
//
// This package allows applications to add passwordless authentication to
// their existing HTTP servers without coupling to onestep-auth's internal
// REST implementation.
//
// # Usage
//
// Create a handler from a ceremony engine and mount it on your router:
//
//	engine, _ := ceremony.NewEngine(...)
//	handler := ceremonyhttp.NewHandler(engine, registry)
//
//	// For chi router:
//	r.Route("/api/v1/auth", func(r chi.Router) {
//	    ceremonyhttp.MountChi(r, handler)
//	})
//
//	// For stdlib http.ServeMux:
//	ceremonyhttp.MountStdlib(mux, "/api/v1/auth", handler)
//
// # Endpoints
//
// The handler provides the following endpoints:
//
//	POST /registration/begin        - Issue a registration challenge
//	POST /registration/finish       - Complete registration
//	POST /login/begin               - Issue an authentication challenge
//	POST /login/finish              - Complete authentication
//	GET  /credentials               - List an owner's active credentials
//	POST /credentials/deactivate    - Revoke a credential
//
// # Headers
//
// The handlers use the following custom headers:
//
//	X-Subject-Key:  Subject key the challenge was issued for.
//	                Must be included in finish operations.
//	X-Device-Class: Optional device class hint for registration
//	                (touch, face, security_key).
//
// # Response Format
//
// All responses are JSON. Successful responses include the data directly.
// Error responses have the format:
//
//	{
//	    "error": "error_code",
//	    "message": "Human-readable message"
//	}
package http
