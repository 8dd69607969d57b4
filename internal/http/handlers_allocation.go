package http

import (
	"bytes"
	"encoding/json"
	"net/http"

	"budgetflow/internal/core"
	applog "budgetflow/internal/log"
)

type overrideRequest struct {
	// Amount is raw so that a missing field can be told apart from null.
	Amount json.RawMessage `json:"amount"`
}

func (s *Server) handleAllocationState(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		writeError(w, r, err, applog.ComponentLedger, applog.OpRead)
		return
	}
	state, err := s.svc.Ledger.GetAllocationState(r.Context(), month)
	if err != nil {
		writeError(w, r, err, applog.ComponentLedger, applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleIncomeOverride sets or, with a null amount, clears the month's
// manual income and answers with the recomputed state.
func (s *Server) handleIncomeOverride(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		writeError(w, r, err, applog.ComponentLedger, applog.OpOverride)
		return
	}
	var req overrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, applog.ComponentLedger, applog.OpOverride)
		return
	}
	amount, err := parseOverrideAmount(req.Amount)
	if err != nil {
		writeError(w, r, err, applog.ComponentLedger, applog.OpOverride)
		return
	}
	if err := s.svc.Ledger.SetIncomeOverride(r.Context(), month, amount); err != nil {
		writeError(w, r, err, applog.ComponentLedger, applog.OpOverride)
		return
	}

	logger := applog.FromContext(r.Context())
	if amount == nil {
		logger.InfoContext(r.Context(), "Income override cleared", applog.FieldMonth, month.String())
	} else {
		logger.InfoContext(r.Context(), "Income override set",
			applog.FieldMonth, month.String(),
			applog.FieldAmountCents, amount.Cents)
	}

	state, err := s.svc.Ledger.GetAllocationState(r.Context(), month)
	if err != nil {
		writeError(w, r, err, applog.ComponentLedger, applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func parseOverrideAmount(raw json.RawMessage) (*core.Money, error) {
	if len(raw) == 0 {
		return nil, core.NewValidationError("amount", "is required; send null to clear the override")
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var m core.Money
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
