package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"budgetflow/internal/core"
	applog "budgetflow/internal/log"
)

// ruleRequest treats an omitted "active" key as true.
type ruleRequest struct {
	core.DistributionRule
	Active *bool `json:"active"`
}

func (req ruleRequest) rule() core.DistributionRule {
	rule := req.DistributionRule
	rule.Active = req.Active == nil || *req.Active
	return rule
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.svc.Distribution.ListRules(r.Context())
	if err != nil {
		writeError(w, r, err, applog.ComponentDistribution, applog.OpList)
		return
	}
	if rules == nil {
		rules = []core.DistributionRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.Distribution.GetRule(r.Context(), ruleID(r))
	if err != nil {
		writeError(w, r, err, applog.ComponentDistribution, applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, applog.ComponentDistribution, applog.OpCreate)
		return
	}
	rule := req.rule()
	created, err := s.svc.Distribution.CreateRule(r.Context(), rule)
	if err != nil {
		writeError(w, r, err, applog.ComponentDistribution, applog.OpCreate)
		return
	}
	w.Header().Set("Location", "/api/rules/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, applog.ComponentDistribution, applog.OpUpdate)
		return
	}
	rule := req.rule()
	updated, err := s.svc.Distribution.UpdateRule(r.Context(), ruleID(r), rule)
	if err != nil {
		writeError(w, r, err, applog.ComponentDistribution, applog.OpUpdate)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := ruleID(r)
	if err := s.svc.Distribution.DeleteRule(r.Context(), id); err != nil {
		writeError(w, r, err, applog.ComponentDistribution, applog.OpDelete)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Distribution rule deleted", applog.FieldRuleID, id)
	w.WriteHeader(http.StatusNoContent)
}

func ruleID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}
