package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"agency-checkout/internal/infra/i18n"
	"agency-checkout/internal/usecase"
)

// Limiter is a per-key request budget. A nil Limiter disables rate limiting.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Options tunes request handling. Zero values fall back to defaults.
type Options struct {
	RequestTimeout time.Duration
	RateLimit      int
	RateWindow     time.Duration
	WaitTimeout    time.Duration
	// TrustedProxies are CIDRs or addresses allowed to set X-Forwarded-For
	// and X-Real-IP. Empty means the socket peer is always the client.
	TrustedProxies []string
	Dev            bool
}

// Deps are the use cases and adapters the HTTP layer drives.
type Deps struct {
	Plans     usecase.PlanUseCase
	Checkout  usecase.CheckoutUseCase
	Flow      *usecase.CheckoutFlow
	Reconcile usecase.ReconcileUseCase
	Admin     usecase.AdminPurchaseUseCase
	Auth      *AuthManager
	Limiter   Limiter
	Pages     *i18n.Catalog
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Health reports readiness of backing stores; nil means always healthy.
	Health func(ctx context.Context) error
}

// Server exposes the checkout, payment callback and admin routes.
type Server struct {
	deps    Deps
	opts    Options
	proxies proxyTrust
	log     *zerolog.Logger
}

func NewServer(deps Deps, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 25 * time.Second
	}
	if deps.Pages == nil {
		pages, err := i18n.NewCatalog(i18n.LocalesFS, i18n.DefaultLang, "en")
		if err != nil {
			logger.Error().Err(err).Msg("load page translations")
		}
		deps.Pages = pages
	}
	proxies, err := parseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		logger.Error().Err(err).Msg("ignoring trusted proxies; forwarded headers will not be used")
		proxies = nil
	}
	return &Server{deps: deps, opts: opts, proxies: proxies, log: logger}
}

// Routes builds the router. Long-poll routes get WaitTimeout instead of the
// regular request timeout.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(s.proxies.clientIP), Recover(s.log), RequestLog(s.log))

	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.With(Timeout(s.opts.RequestTimeout)).Get("/payment-success", s.handlePaymentSuccess)
	r.With(Timeout(s.opts.RequestTimeout)).Get("/payment-cancelled", s.handlePaymentCancelled)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(Timeout(s.opts.WaitTimeout+5*time.Second)).Get("/purchases/{id}/wait", s.handleWaitPurchase)

		r.Group(func(r chi.Router) {
			r.Use(Timeout(s.opts.RequestTimeout))

			r.Get("/plans", s.handleListPlans)
			r.Post("/checkout", s.handleCheckout)
			r.Get("/purchases/{id}", s.handleGetPurchase)
			r.Post("/purchases/{id}/requirements", s.handleAttachRequirements)
			r.Post("/purchases/requirements", s.handleAttachRequirementsByContact)
			r.Post("/payments/confirm", s.handleConfirmPayment)

			r.Post("/admin/login", s.handleAdminLogin)
			r.Post("/admin/logout", s.handleAdminLogout)
			r.Group(func(r chi.Router) {
				r.Use(s.deps.Auth.RequireAdmin)
				r.Get("/admin/purchases", s.handleAdminListPurchases)
				r.Put("/admin/purchases/{id}/status", s.handleAdminSetStatus)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
