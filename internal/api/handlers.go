/**
 * @description
 * This file contains the HTTP handlers for the settlement service's
 * operational endpoints. The only mutating endpoint is the internal manual
 * trigger, used for reconciliation when a cycle must run outside its cron
 * cadence.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app: The settlement cycle orchestrator.
 */

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ecobloom/settlement-service/internal/app"
)

// SettlementHandlers holds the settlement jobs runner that handlers will use.
type SettlementHandlers struct {
	jobs   *app.Jobs
	logger *slog.Logger
}

// NewSettlementHandlers creates the handler set for the operational API.
func NewSettlementHandlers(jobs *app.Jobs, logger *slog.Logger) *SettlementHandlers {
	return &SettlementHandlers{jobs: jobs, logger: logger}
}

// RunSettlementHandler triggers one settlement cycle and returns its report.
// A cycle already in flight yields 409 rather than a second concurrent run.
func (h *SettlementHandlers) RunSettlementHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.jobs.SettleCampaigns(r.Context())
	if err != nil {
		if errors.Is(err, app.ErrCycleInProgress) {
			http.Error(w, "a settlement cycle is already running", http.StatusConflict)
			return
		}
		h.logger.Error("manual settlement cycle failed", "error", err)
		http.Error(w, "settlement cycle aborted", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(report)
}
