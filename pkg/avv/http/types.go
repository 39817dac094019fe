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

import "github.com/jeremyhahn/onestep-auth/pkg/avv"

// BatchCheckRequest is the request body for POST /batch.
type BatchCheckRequest struct {
	Checks []avv.Request `json:"checks"`
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.Error
const (
	ErrorCodeInvalidRequest   = "invalid_request"
	ErrorCodeUnknownCheckType = "unknown_check_type"
	ErrorCodeInternalError    = "internal_error"
)
