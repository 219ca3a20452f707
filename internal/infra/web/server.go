package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	credis "character-chat-billing/internal/infra/redis"
	"character-chat-billing/internal/usecase"
)

type Server struct {
	checkoutUC  usecase.CheckoutUseCase
	reconcileUC usecase.ReconcileUseCase
	verifyUC    usecase.VerifyUseCase
	ledgerUC    usecase.LedgerUseCase
	grantUC     usecase.GrantUseCase

	auth          *AuthManager
	webhookSecret string
	deductCost    int64
	limiter       *credis.RateLimiter

	httpServer *http.Server
	log        *zerolog.Logger
}

type ServerConfig struct {
	Addr          string
	WebhookSecret string
	DeductCost    int64
}

func NewServer(
	cfg ServerConfig,
	checkoutUC usecase.CheckoutUseCase,
	reconcileUC usecase.ReconcileUseCase,
	verifyUC usecase.VerifyUseCase,
	ledgerUC usecase.LedgerUseCase,
	grantUC usecase.GrantUseCase,
	auth *AuthManager,
	limiter *credis.RateLimiter,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	s := &Server{
		checkoutUC:    checkoutUC,
		reconcileUC:   reconcileUC,
		verifyUC:      verifyUC,
		ledgerUC:      ledgerUC,
		grantUC:       grantUC,
		auth:          auth,
		webhookSecret: cfg.WebhookSecret,
		deductCost:    cfg.DeductCost,
		limiter:       limiter,
		log:           &l,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the router; exposed separately so tests can mount it on
// an httptest server.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID)
	r.Use(Recover(s.log))
	r.Use(RequestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout/sessions", checkoutCreateHandler(s.checkoutUC))
		r.Post("/webhooks/payment", webhookHandler(s.webhookSecret, s.reconcileUC, s.limiter, s.log))

		r.Post("/tokens/deduct", tokensDeductHandler(s.ledgerUC, s.deductCost))
		r.Get("/users/{userID}/tokens", tokensBalanceHandler(s.ledgerUC))

		r.Post("/operator/login", operatorLoginHandler(s.auth))
		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireOperator)
			r.Post("/payments/{sessionID}/sync", paymentSyncHandler(s.verifyUC))
			r.Post("/payments/{sessionID}/verify", paymentVerifyHandler(s.verifyUC))
			r.Post("/jobs/monthly-grant", monthlyGrantHandler(s.grantUC))
		})
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
