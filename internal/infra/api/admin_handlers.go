package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/repository"
	"agency-checkout/internal/infra/metrics"
)

type loginRequest struct {
	APIKey string `json:"apiKey" validate:"required,max=256"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Auth.Enabled() {
		writeJSONError(w, http.StatusForbidden, apiError{Code: "admin_disabled", Message: "admin access is not configured"})
		return
	}
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err, "")
		return
	}
	if !s.deps.Auth.CheckKey(req.APIKey) {
		metrics.IncAdminAction("login", "denied")
		writeJSONError(w, http.StatusUnauthorized, apiError{Code: "unauthorized", Message: "invalid api key"})
		return
	}
	token, err := s.deps.Auth.Mint(w)
	if err != nil {
		metrics.IncAdminAction("login", "error")
		writeError(w, r, s.log, err, "")
		return
	}
	metrics.IncAdminAction("login", "ok")
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "expiresIn": int(s.deps.Auth.cfg.TTL.Seconds())})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	if s.deps.Auth != nil {
		s.deps.Auth.Clear(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminListPurchases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.PurchaseFilter{Email: q.Get("email"), PlanID: q.Get("planId")}
	if raw := q.Get("status"); raw != "" {
		st, ok := model.ParsePurchaseStatus(raw)
		if !ok {
			writeError(w, r, s.log, domain.NewValidationError("status", "unknown status"), "")
			return
		}
		f.Status = st
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	if f.Offset < 0 {
		f.Offset = 0
	}

	items, err := s.deps.Admin.List(r.Context(), f)
	if err != nil {
		metrics.IncAdminAction("list_purchases", "error")
		writeError(w, r, s.log, err, "")
		return
	}
	metrics.IncAdminAction("list_purchases", "ok")
	out := make([]adminPurchaseView, 0, len(items))
	for _, p := range items {
		out = append(out, toAdminPurchaseView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "count": len(out)})
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending completed failed"`
}

func (s *Server) handleAdminSetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err, id)
		return
	}
	st, _ := model.ParsePurchaseStatus(req.Status)
	p, err := s.deps.Admin.SetStatus(r.Context(), id, st)
	if err != nil {
		metrics.IncAdminAction("set_status", "error")
		writeError(w, r, s.log, err, id)
		return
	}
	metrics.IncAdminAction("set_status", "ok")
	writeJSON(w, http.StatusOK, toAdminPurchaseView(p))
}
