package api

import (
	"errors"
	"net/http"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/infra/logging"
	"agency-checkout/internal/usecase"
)

const payPhoneSuccessEvent = "PAYPHONE_PAYMENT_SUCCESS"

// confirmRequest is the success message the payment page relays from the
// gateway widget.
type confirmRequest struct {
	Type                string      `json:"type" validate:"omitempty,oneof=PAYPHONE_PAYMENT_SUCCESS"`
	TransactionID       looseString `json:"transactionId" validate:"required,max=128"`
	PurchaseID          string      `json:"purchaseId" validate:"max=64"`
	ClientTransactionID string      `json:"clientTransactionId" validate:"max=64"`
}

type confirmResponse struct {
	PurchaseID    string `json:"purchaseId"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
	Changed       bool   `json:"changed"`
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err, "")
		return
	}
	key := usecase.LookupKey{PurchaseID: firstNonEmpty(req.PurchaseID, req.ClientTransactionID)}
	details := map[string]any{"source": "message", "type": firstNonEmpty(req.Type, payPhoneSuccessEvent)}

	res, err := s.deps.Reconcile.Reconcile(r.Context(), string(req.TransactionID), key, details)
	if err != nil {
		writeError(w, r, s.log, err, key.PurchaseID)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{
		PurchaseID:    res.Purchase.ID,
		Status:        string(res.Purchase.Status),
		TransactionID: string(req.TransactionID),
		Changed:       res.Changed,
	})
}

// handlePaymentSuccess is the gateway's browser redirect target. It accepts
// transactionId (or id) and clientTransactionId (or purchaseId).
func (s *Server) handlePaymentSuccess(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t := s.deps.Pages.For(pageLang(r))
	txID := firstNonEmpty(q.Get("transactionId"), q.Get("id"))
	key := usecase.LookupKey{PurchaseID: firstNonEmpty(q.Get("clientTransactionId"), q.Get("purchaseId"))}

	if txID == "" {
		renderPage(w, http.StatusBadRequest, resultPage{
			Lang: t.Lang(), Title: t.T("missing_title"), Body: t.T("missing_body"),
			HomeLabel: t.T("back_home"),
		})
		return
	}

	res, err := s.deps.Reconcile.Reconcile(r.Context(), txID, key, map[string]any{"source": "redirect"})
	if err != nil {
		status, e := classifyError(err)
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("transaction_id", txID).Str("code", e.Code).Msg("payment success redirect not recorded")

		page := resultPage{
			Lang:          t.Lang(),
			Title:         t.T("record_error_title"),
			Body:          t.T("record_error_body"),
			TxLabel:       t.T("transaction_label"),
			TransactionID: txID,
			HomeLabel:     t.T("back_home"),
		}
		if errors.Is(err, domain.ErrNotFound) {
			page.Title, page.Body = t.T("not_found_title"), t.T("not_found_body")
		}
		renderPage(w, status, page)
		return
	}

	page := resultPage{
		OK:            true,
		Lang:          t.Lang(),
		Title:         t.T("success_title"),
		Body:          t.T("success_body", logging.RedactEmail(res.Purchase.Email, s.opts.Dev)),
		TxLabel:       t.T("transaction_label"),
		TransactionID: txID,
		HomeLabel:     t.T("back_home"),
	}
	if !res.Changed {
		page.Note = t.T("success_duplicate")
	}
	renderPage(w, http.StatusOK, page)
}

// handlePaymentCancelled leaves the purchase pending; the buyer may retry.
func (s *Server) handlePaymentCancelled(w http.ResponseWriter, r *http.Request) {
	t := s.deps.Pages.For(pageLang(r))
	if id := firstNonEmpty(r.URL.Query().Get("clientTransactionId"), r.URL.Query().Get("purchaseId")); id != "" {
		l := logging.With(logging.WithPurchaseID(r.Context(), id), s.log)
		l.Info().Msg("payment cancelled by buyer")
	}
	renderPage(w, http.StatusOK, resultPage{
		Lang: t.Lang(), Title: t.T("cancel_title"), Body: t.T("cancel_body"), HomeLabel: t.T("back_home"),
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
