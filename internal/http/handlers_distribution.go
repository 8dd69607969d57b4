package http

import (
	"net/http"

	"budgetflow/internal/core"
	applog "budgetflow/internal/log"
	"budgetflow/internal/services"
)

type distributeRequest struct {
	Amount   *core.Money `json:"amount"`
	Strategy string      `json:"strategy"`
	Preview  bool        `json:"preview"`
}

type evaluateRequest struct {
	TransactionID string `json:"transactionId"`
}

func (s *Server) handleEnvelopes(w http.ResponseWriter, r *http.Request) {
	envelopes, err := s.svc.Distribution.ActiveEnvelopes(r.Context())
	if err != nil {
		writeError(w, r, err, applog.ComponentDistribution, applog.OpList)
		return
	}
	if envelopes == nil {
		envelopes = []core.Envelope{}
	}
	writeJSON(w, http.StatusOK, envelopes)
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, applog.ComponentDistribution, applog.OpDistribute)
		return
	}
	if req.Amount == nil {
		writeError(w, r, core.NewValidationError("amount", "is required"), applog.ComponentDistribution, applog.OpDistribute)
		return
	}
	strategy := core.StrategyPriority
	if req.Strategy != "" {
		parsed, err := core.ParseStrategyName(req.Strategy)
		if err != nil {
			writeError(w, r, err, applog.ComponentDistribution, applog.OpDistribute)
			return
		}
		strategy = parsed
	}

	result, err := s.svc.Distribution.DistributeManually(r.Context(), *req.Amount, strategy, req.Preview)
	if err != nil {
		writeError(w, r, err, applog.ComponentDistribution, applog.OpDistribute)
		return
	}
	if !req.Preview {
		s.recordDistribution(r, services.TriggerManual, "", result)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRuleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, applog.ComponentDistribution, applog.OpEvaluate)
		return
	}
	eval, err := s.svc.Distribution.EvaluateTransaction(r.Context(), req.TransactionID)
	if err != nil {
		writeError(w, r, err, applog.ComponentDistribution, applog.OpEvaluate)
		return
	}
	if eval.Distribution != nil {
		s.recordDistribution(r, services.TriggerRule, eval.TriggeredRuleID, *eval.Distribution)
	}
	writeJSON(w, http.StatusOK, eval)
}

func (s *Server) recordDistribution(r *http.Request, trigger, ruleID string, result core.DistributionResult) {
	allocated := result.Amount.Sub(result.Unassigned)
	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogDistributionApplied(r.Context(),
		trigger, string(result.Strategy), ruleID, allocated.Cents, len(result.Allocations))
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordDistribution(trigger, string(result.Strategy), allocated.Cents)
	}
}
