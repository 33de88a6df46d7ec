// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
	recsync "github.com/tomtom215/recordsync/internal/sync"
	"github.com/tomtom215/recordsync/internal/validation"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 64 << 10

// TriggerRequest is the optional body of POST /api/v1/sync.
type TriggerRequest struct {
	Collections []string `json:"collections" validate:"omitempty,max=100,dive,identifier"`
}

// SyncResponse is returned by the sync trigger endpoints.
type SyncResponse struct {
	AllSucceeded bool              `json:"all_succeeded"`
	Outcomes     []recsync.Outcome `json:"outcomes"`
}

// TriggerSync handles POST /api/v1/sync. An empty body or empty
// collections list syncs every enabled collection.
//
// Responds 200 when every outcome succeeded, 207 when any failed, 404 for
// an unknown collection and 409 while another run is in progress.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req TriggerRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		rw.BadRequest("Invalid JSON body: " + err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	h.runSync(rw, r, req.Collections)
}

// TriggerCollectionSync handles POST /api/v1/sync/{collection}.
func (h *Handler) TriggerCollectionSync(w http.ResponseWriter, r *http.Request) {
	h.runSync(NewResponseWriter(w, r), r, []string{chi.URLParam(r, "collection")})
}

func (h *Handler) runSync(rw *ResponseWriter, r *http.Request, names []string) {
	outcomes, err := h.sync.TriggerSync(r.Context(), names...)
	switch {
	case errors.Is(err, recsync.ErrSyncInProgress):
		rw.Conflict("A sync run is already in progress")
		return
	case errors.Is(err, config.ErrUnknownCollection):
		rw.NotFound(err.Error())
		return
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Sync trigger failed")
		rw.InternalError("Sync could not be started")
		return
	}

	resp := SyncResponse{
		AllSucceeded: recsync.AllSucceeded(outcomes),
		Outcomes:     outcomes,
	}

	status := http.StatusOK
	if !resp.AllSucceeded {
		status = http.StatusMultiStatus
	}

	logging.Ctx(r.Context()).Info().
		Int("collections", len(outcomes)).
		Bool("all_succeeded", resp.AllSucceeded).
		Msg("Operator-triggered sync finished")
	rw.SuccessWithStatus(status, resp)
}
