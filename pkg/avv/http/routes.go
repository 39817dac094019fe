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

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts risk check routes on a chi router.
//
// Example:
//
//	handler := avvhttp.NewHandler(engine)
//	r.Route("/api/v1/risk", func(r chi.Router) {
//	    avvhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/check", h.Check)
	r.Post("/batch", h.CheckBatch)
}

// MountStdlib mounts risk check routes on a stdlib http.ServeMux.
// The prefix should not include a trailing slash. Method checking is
// performed inside the handlers.
func MountStdlib(mux *http.ServeMux, prefix string, h *Handler) {
	mux.HandleFunc(prefix+"/check", h.Check)
	mux.HandleFunc(prefix+"/batch", h.CheckBatch)
}
