package http

import (
	"net/http"
	"strings"

	"budgetflow/internal/core"
	applog "budgetflow/internal/log"
)

type dismissRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleTransferSuggestions(w http.ResponseWriter, r *http.Request) {
	month, err := ParseMonthQuery(r.URL.Query(), s.opts.Now())
	if err != nil {
		writeError(w, r, err, applog.ComponentTransfer, applog.OpRead)
		return
	}
	report, err := s.svc.Advisor.ComputeTransferSuggestions(r.Context(), month)
	if err != nil {
		writeError(w, r, err, applog.ComponentTransfer, applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleNotifications answers with whatever sources could be read; the
// failed ones are listed in the feed rather than failing the request.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	client := clientID(r)
	feed, err := s.svc.Notifications.Feed(r.Context(), client)
	if err != nil {
		writeError(w, r, err, applog.ComponentNotification, applog.OpList)
		return
	}
	if len(feed.Unavailable) > 0 {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Notification feed is partial",
			applog.FieldClientID, client,
			"sources", feed.Unavailable)
		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordSourceFailures(feed.Unavailable)
		}
	}
	if feed.Alerts == nil {
		feed.Alerts = []core.Alert{}
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	var req dismissRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, applog.ComponentNotification, applog.OpDismiss)
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		writeError(w, r, core.NewValidationError("id", "is required"), applog.ComponentNotification, applog.OpDismiss)
		return
	}
	client := clientID(r)
	if err := s.svc.Notifications.Dismiss(r.Context(), client, id); err != nil {
		writeError(w, r, core.Unavailable("dismiss alert", err), applog.ComponentNotification, applog.OpDismiss)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Alert dismissed",
		applog.FieldClientID, client,
		applog.FieldAlertID, id)
	w.WriteHeader(http.StatusNoContent)
}
