package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mediavault/mediavault/pkg/models"
	"github.com/mediavault/mediavault/pkg/reconcile"
)

// Reconciler is the engine surface the HTTP layer drives.
// Implemented by *reconcile.Engine.
type Reconciler interface {
	Detect(ctx context.Context, includeItems bool) (*reconcile.DetectionSummary, error)
	Cleanup(ctx context.Context, dryRun bool) (*reconcile.CleanupResult, error)
}

// ReconcileHandler handles POST /api/v1/reconcile.
type ReconcileHandler struct {
	engine Reconciler
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(engine Reconciler) *ReconcileHandler {
	return &ReconcileHandler{engine: engine}
}

// ReconcileRequest is the request body for POST /api/v1/reconcile.
//
// DryRun defaults to true when omitted: mutation requires explicit opt-in.
type ReconcileRequest struct {
	Action       string `json:"action"`
	DryRun       *bool  `json:"dry_run,omitempty"`
	IncludeItems bool   `json:"include_items,omitempty"`
}

// Run dispatches a reconciliation run.
//
// Actions:
//   - "detect": read-only detection, returns a DetectionSummary
//   - "cleanup": cleanup run (dry-run unless dry_run is explicitly false),
//     returns a CleanupResult
//
// An unknown action is a 400. Partial per-category failures are reported
// inside the result body with a 200; only a missing store configuration
// produces a 500.
func (h *ReconcileHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	switch req.Action {
	case "detect":
		summary, err := h.engine.Detect(r.Context(), req.IncludeItems)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		WriteJSONOK(w, summary)
	case "cleanup":
		dryRun := true
		if req.DryRun != nil {
			dryRun = *req.DryRun
		}
		result, err := h.engine.Cleanup(r.Context(), dryRun)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		WriteJSONOK(w, result)
	default:
		BadRequest(w, fmt.Sprintf("unknown action %q: must be \"detect\" or \"cleanup\"", req.Action))
	}
}

func (h *ReconcileHandler) writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrNotConfigured) {
		InternalServerError(w, err.Error())
		return
	}
	InternalServerError(w, "reconciliation failed: "+err.Error())
}
