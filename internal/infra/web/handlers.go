package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"character-chat-billing/internal/domain"
	"character-chat-billing/internal/domain/model"
	"character-chat-billing/internal/infra/gateway"
	"character-chat-billing/internal/infra/logging"
	"character-chat-billing/internal/infra/metrics"
	credis "character-chat-billing/internal/infra/redis"
	"character-chat-billing/internal/usecase"
)

const maxWebhookBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

// ===== Checkout =====

type checkoutRequest struct {
	Kind        string            `json:"kind"`
	PlanID      string            `json:"planId"`
	TokenAmount int64             `json:"tokenAmount"`
	UnitPrice   float64           `json:"unitPrice"`
	Currency    string            `json:"currency"`
	UserID      string            `json:"userId"`
	Email       string            `json:"email"`
	Metadata    map[string]string `json:"metadata"`
}

type checkoutResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

func checkoutCreateHandler(checkoutUC usecase.CheckoutUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.UserID == "" {
			writeError(w, http.StatusBadRequest, "userId is required")
			return
		}

		sess, err := checkoutUC.BuildSession(r.Context(), model.PurchaseIntent{
			Kind:        model.PurchaseKind(req.Kind),
			PlanID:      req.PlanID,
			TokenAmount: req.TokenAmount,
			UnitPrice:   req.UnitPrice,
			Currency:    req.Currency,
			UserID:      req.UserID,
			Email:       req.Email,
			Metadata:    req.Metadata,
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidArgument),
				errors.Is(err, domain.ErrInvalidAmount),
				errors.Is(err, domain.ErrInvalidPrice):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, domain.ErrNotFound):
				writeError(w, http.StatusNotFound, "plan not found")
			default:
				writeError(w, http.StatusBadGateway, "failed to create checkout session")
			}
			return
		}

		writeJSON(w, http.StatusCreated, checkoutResponse{Success: true, SessionID: sess.ID, URL: sess.URL})
	}
}

// ===== Webhook ingress =====

// webhookHandler verifies the delivery signature, then hands completed
// sessions to the reconciler. Events that the reconciler cannot settle
// still get a 200: the gateway retries transport failures, not ours, and
// the resync worker picks up whatever was left degraded.
func webhookHandler(webhookSecret string, reconcileUC usecase.ReconcileUseCase, limiter *credis.RateLimiter, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if limiter != nil {
			ok, err := limiter.Allow(ctx, credis.WebhookSourceKey(r.RemoteAddr), 120, time.Minute)
			if err == nil && !ok {
				metrics.IncWebhook("throttled")
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}

		if err := gateway.VerifyWebhookSignature(webhookSecret, body, r.Header.Get("X-Gateway-Signature"), time.Now()); err != nil {
			metrics.IncWebhook("signature_mismatch")
			logging.With(ctx, log).Warn().Str("remote", r.RemoteAddr).Msg("webhook signature mismatch")
			writeError(w, http.StatusBadRequest, "signature mismatch")
			return
		}

		ev, err := gateway.ParseWebhookEvent(body)
		if err != nil {
			metrics.IncWebhook("malformed")
			writeError(w, http.StatusBadRequest, "malformed event")
			return
		}

		if ev.Type != "checkout.session.completed" || ev.Data.Object.ID == "" {
			metrics.IncWebhook("ignored")
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "ignored": true})
			return
		}

		// Completed sessions count only once payment is confirmed; async
		// methods fire the event before settling and get picked up by a
		// later delivery or a sync pull.
		observed := gateway.MapPaymentStatus(ev.Data.Object.PaymentStatus)
		if observed != model.PaymentStatusPaid {
			metrics.IncWebhook("ignored")
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "ignored": true})
			return
		}
		p, err := reconcileUC.Reconcile(ctx, ev.Data.Object.ID, observed, ev.Data.Object.Metadata)
		if err != nil {
			// Persisting failed outright; a retry from the gateway can succeed.
			metrics.IncWebhook("failed")
			logging.With(ctx, log).Error().Err(err).Str("session_id", ev.Data.Object.ID).Msg("webhook reconcile failed")
			writeError(w, http.StatusInternalServerError, "reconcile failed")
			return
		}

		metrics.IncWebhook("accepted")
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"sessionId":  p.ExternalSessionID,
			"status":     string(p.Status),
			"incomplete": p.Incomplete,
		})
	}
}

// ===== Operator: sync and manual verify =====

type paymentView struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"sessionId"`
	UserID     *string           `json:"userId,omitempty"`
	Amount     float64           `json:"amount"`
	Currency   string            `json:"currency"`
	Status     string            `json:"status"`
	Incomplete bool              `json:"incomplete"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

func toPaymentView(p *model.PaymentTransaction) paymentView {
	return paymentView{
		ID:         p.ID,
		SessionID:  p.ExternalSessionID,
		UserID:     p.UserID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Status:     string(p.Status),
		Incomplete: p.Incomplete,
		Metadata:   p.Metadata,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func paymentSyncHandler(verifyUC usecase.VerifyUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			writeError(w, http.StatusBadRequest, "sessionID is required")
			return
		}

		p, warning, err := verifyUC.SyncPull(r.Context(), sessionID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "sync failed")
			return
		}

		resp := struct {
			Success bool        `json:"success"`
			Payment paymentView `json:"payment"`
			Warning string      `json:"warning,omitempty"`
		}{Success: true, Payment: toPaymentView(p), Warning: warning}
		writeJSON(w, http.StatusOK, resp)
	}
}

func paymentVerifyHandler(verifyUC usecase.VerifyUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			writeError(w, http.StatusBadRequest, "sessionID is required")
			return
		}

		granted, err := verifyUC.ManualVerify(r.Context(), sessionID)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrSessionNotPaid):
				writeError(w, http.StatusConflict, "session is not paid")
			case errors.Is(err, domain.ErrUserNotFound):
				writeError(w, http.StatusNotFound, "no user matches the session")
			case errors.Is(err, domain.ErrGatewayUnavailable):
				writeError(w, http.StatusBadGateway, "gateway unavailable")
			default:
				writeError(w, http.StatusInternalServerError, "verification failed")
			}
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "tokensGranted": granted})
	}
}

// ===== Tokens =====

type deductRequest struct {
	UserID      string `json:"userId"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func tokensDeductHandler(ledgerUC usecase.LedgerUseCase, defaultCost int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deductRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.UserID == "" {
			writeError(w, http.StatusBadRequest, "userId is required")
			return
		}
		amount := req.Amount
		if amount == 0 {
			amount = defaultCost
		}
		desc := req.Description
		if desc == "" {
			desc = "usage"
		}

		entry, err := ledgerUC.Debit(r.Context(), req.UserID, amount, model.TokenTxUsage, desc)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInsufficientBalance):
				writeError(w, http.StatusPaymentRequired, "insufficient token balance")
			case errors.Is(err, domain.ErrInvalidAmount):
				writeError(w, http.StatusBadRequest, "amount must be positive")
			default:
				writeError(w, http.StatusInternalServerError, "deduction failed")
			}
			return
		}

		balance, err := ledgerUC.GetBalance(r.Context(), req.UserID)
		if err != nil {
			// The debit already committed; report it without the balance.
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "transactionId": entry.ID})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"transactionId": entry.ID,
			"balance":       balance,
		})
	}
}

func tokensBalanceHandler(ledgerUC usecase.LedgerUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "userID is required")
			return
		}

		balance, err := ledgerUC.GetBalance(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read balance")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "userId": userID, "balance": balance})
	}
}

// ===== Jobs =====

func monthlyGrantHandler(grantUC usecase.GrantUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		granted, err := grantUC.RunMonthlyGrant(r.Context(), time.Now())
		if err != nil {
			// Partial runs report how far they got; idempotent keys make a
			// rerun safe.
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"success": false,
				"granted": granted,
				"error":   "grant run did not complete",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "granted": granted})
	}
}

// ===== Operator login =====

type loginRequest struct {
	Secret string `json:"secret"`
}

func operatorLoginHandler(auth *AuthManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !auth.CheckSecret(req.Secret) {
			writeError(w, http.StatusForbidden, "bad secret")
			return
		}
		token, err := auth.Mint()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to mint token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token})
	}
}
