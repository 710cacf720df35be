package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/infra/logging"
	"agency-checkout/internal/infra/metrics"
	red "agency-checkout/internal/infra/redis"
	"agency-checkout/internal/usecase"
)

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.deps.Plans.List(r.Context())
	if err != nil {
		writeError(w, r, s.log, err, "")
		return
	}
	items := make([]planView, 0, len(plans))
	for _, p := range plans {
		items = append(items, toPlanView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type checkoutRequest struct {
	PlanID       string `json:"planId" validate:"required,max=64"`
	Email        string `json:"email" validate:"required,max=254"`
	Requirements string `json:"requirements" validate:"max=4000"`
}

type checkoutResponse struct {
	PurchaseID    string `json:"purchaseId"`
	PaymentURL    string `json:"paymentUrl"`
	TransactionID string `json:"transactionId,omitempty"`
	// Amounts are minor units (cents); amount = amountWithTax + tax.
	Amount        int64 `json:"amount"`
	AmountWithTax int64 `json:"amountWithTax"`
	Tax           int64 `json:"tax"`
}

// handleCheckout records a pending purchase for the selected plan and returns
// the gateway redirect. A purchase recorded before a gateway failure is
// reported in the error body.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.With(ctx, s.log)

	if !s.allowCheckout(ctx, s.proxies.clientIP(r)) {
		metrics.IncRateLimited()
		writeJSONError(w, http.StatusTooManyRequests, apiError{Code: "rate_limited", Message: "too many checkout attempts, try again later"})
		return
	}

	var req checkoutRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err, "")
		return
	}

	plan, err := s.deps.Plans.Get(ctx, req.PlanID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			err = domain.NewValidationError("planId", "unknown plan")
		}
		writeError(w, r, s.log, err, "")
		return
	}

	sess := s.deps.Flow.NewSession()
	defer sess.Close()
	sess.SelectPlan(plan)
	sess.SetContact(req.Email)

	ps, err := sess.Submit(ctx)

	purchaseID := ""
	if p := sess.Purchase(); p != nil {
		purchaseID = p.ID
		if req.Requirements != "" {
			if aerr := s.deps.Checkout.AttachRequirements(ctx, p.ID, req.Requirements); aerr != nil {
				log.Warn().Err(aerr).Str("purchase_id", p.ID).Msg("attach requirements failed")
			}
		}
	}
	if err != nil {
		writeError(w, r, s.log, err, purchaseID)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{
		PurchaseID:    ps.PurchaseID,
		PaymentURL:    ps.PaymentURL,
		TransactionID: ps.TransactionID,
		Amount:        ps.AmountMinor,
		AmountWithTax: ps.BaseMinor,
		Tax:           ps.TaxMinor,
	})
}

// allowCheckout applies the per-client budget. Limiter failures let the
// request through.
func (s *Server) allowCheckout(ctx context.Context, ip string) bool {
	if s.deps.Limiter == nil {
		return true
	}
	ok, err := s.deps.Limiter.Allow(ctx, red.CheckoutKey(ip), s.opts.RateLimit, s.opts.RateWindow)
	if err != nil {
		l := logging.With(ctx, s.log)
		l.Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	return ok
}

func (s *Server) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.deps.Checkout.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, s.log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseView(p))
}

// handleWaitPurchase long-polls until the purchase settles or the timeout
// passes. A timeout answers 200 with the pending purchase.
func (s *Server) handleWaitPurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d := s.waitTimeout(r.URL.Query().Get("timeout"))

	ctx, cancel := context.WithTimeout(r.Context(), d)
	defer cancel()

	p, err := s.deps.Flow.Await(ctx, id)
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, usecase.ErrSessionClosed)
		if !timedOut || p == nil {
			writeError(w, r, s.log, err, id)
			return
		}
	}
	writeJSON(w, http.StatusOK, struct {
		purchaseView
		Settled bool `json:"settled"`
	}{toPurchaseView(p), p.Status.Terminal()})
}

// waitTimeout accepts "15s" or "15"; values are clamped to (0, WaitTimeout].
func (s *Server) waitTimeout(raw string) time.Duration {
	if raw == "" {
		return s.opts.WaitTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		n, nerr := strconv.Atoi(raw)
		if nerr != nil {
			return s.opts.WaitTimeout
		}
		d = time.Duration(n) * time.Second
	}
	if d <= 0 || d > s.opts.WaitTimeout {
		return s.opts.WaitTimeout
	}
	return d
}

type requirementsRequest struct {
	Requirements string `json:"requirements" validate:"required,max=4000"`
}

func (s *Server) handleAttachRequirements(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req requirementsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err, id)
		return
	}
	if err := s.deps.Checkout.AttachRequirements(r.Context(), id, req.Requirements); err != nil {
		writeError(w, r, s.log, err, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type contactRequirementsRequest struct {
	Email        string `json:"email" validate:"required,max=254"`
	PlanID       string `json:"planId" validate:"required,max=64"`
	Requirements string `json:"requirements" validate:"required,max=4000"`
}

// handleAttachRequirementsByContact updates the newest pending purchase for
// (email, planId). Ambiguous matches are reported, not rejected.
func (s *Server) handleAttachRequirementsByContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequirementsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err, "")
		return
	}
	matched, err := s.deps.Checkout.AttachRequirementsByContact(r.Context(), req.Email, req.PlanID, req.Requirements)
	if err != nil {
		writeError(w, r, s.log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matched": matched, "ambiguous": matched > 1})
}
